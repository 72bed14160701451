package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/engagement-bench/internal/config"
	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
	"github.com/blackmichael/engagement-bench/internal/sqlstore"
	"github.com/blackmichael/engagement-bench/internal/stream"
)

func ptr(v float64) *float64 { return &v }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, store Store, hub http.Handler) *httptest.Server {
	t.Helper()
	s := NewServer(&config.Config{Port: 0}, store, hub, metrics.New(), quiet())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func seededStore(t *testing.T) *sqlstore.Repository {
	t.Helper()
	repo, err := sqlstore.NewRepository(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	require.NoError(t, repo.UpsertAccount(ctx, &domain.Account{
		Platform:      domain.PlatformTwitter,
		ExternalID:    "humasbdg",
		DisplayName:   "Humas Kota Bandung",
		FollowerCount: 1200,
		AccountType:   domain.AccountOfficial,
		EntityID:      "3273",
	}))
	require.NoError(t, repo.UpsertScoreSnapshot(ctx, &domain.ScoreSnapshot{
		Platform:        domain.PlatformTwitter,
		AccountID:       "humasbdg",
		ResultDate:      "2026-10-19",
		EngagementIndex: ptr(1.5),
		Normalized:      ptr(50),
		ComputedAt:      time.Now().UTC(),
	}))
	require.NoError(t, repo.UpsertPost(ctx, &domain.Post{
		Platform:     domain.PlatformTwitter,
		PostID:       "1790000000000000001",
		AccountID:    "humasbdg",
		PostType:     "photo",
		CreatedAt:    time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
		Message:      "Car free day",
		LikeCount:    30,
		CommentCount: 4,
		ReshareCount: 7,
	}))
	require.NoError(t, repo.ReplacePostTypeSnapshots(ctx, domain.PlatformTwitter, []domain.PostTypeScoreSnapshot{
		{Platform: domain.PlatformTwitter, PostType: "photo", Normalized: ptr(100)},
	}))
	require.NoError(t, repo.UpsertComposite(ctx, &domain.CompositeScore{
		EntityID:   "3273",
		EntityName: "Kota Bandung",
		Platforms:  map[domain.Platform]*float64{domain.PlatformTwitter: ptr(50)},
		Composite:  ptr(50),
	}))
	return repo
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthReportsUnavailableStore(t *testing.T) {
	repo := seededStore(t)
	srv := newTestServer(t, repo, nil)
	require.NoError(t, repo.Close())

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "unavailable", body["status"])
}

func TestGetPost(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/posts/twitter/1790000000000000001", &body))
	assert.Equal(t, "humasbdg", body["account_id"])
	assert.Equal(t, "Car free day", body["message"])
	assert.EqualValues(t, 7, body["reshare_count"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/posts/twitter/missing", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/posts/myspace/1", nil))
}

func TestGetScore(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var snap domain.ScoreSnapshot
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/scores/twitter/HumasBdg", &snap))
	assert.Equal(t, "humasbdg", snap.AccountID)
	require.NotNil(t, snap.Normalized)
	assert.InDelta(t, 50, *snap.Normalized, 1e-9)
}

func TestGetScoreNotFound(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/scores/facebook/nobody", &body))
	assert.Equal(t, "NotFound", body["error"])
}

func TestUnknownPlatform(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/post-types/myspace", nil))
}

func TestListPostTypes(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var body struct {
		PostTypes []domain.PostTypeScoreSnapshot `json:"post_types"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/post-types/twitter", &body))
	require.Len(t, body.PostTypes, 1)
	assert.Equal(t, "photo", body.PostTypes[0].PostType)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/post-types/youtube", &body))
	assert.Empty(t, body.PostTypes)
}

func TestListAccounts(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var body struct {
		Accounts []map[string]any `json:"accounts"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/accounts/twitter?type=official", &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "humasbdg", body.Accounts[0]["account_id"])

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/accounts/twitter?type=bot", nil))
}

func TestGetComposite(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	var score domain.CompositeScore
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/composites/3273", &score))
	assert.Equal(t, "Kota Bandung", score.EntityName)
	require.NotNil(t, score.Composite)
	assert.InDelta(t, 50, *score.Composite, 1e-9)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/composites/9999", nil))
}

type brokenStore struct{ Store }

func (brokenStore) GetComposite(context.Context, string) (*domain.CompositeScore, error) {
	return nil, errors.New("database is locked")
}

func TestGetCompositeStoreError(t *testing.T) {
	srv := newTestServer(t, brokenStore{}, nil)

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/v1/composites/3273", &body))
	assert.Equal(t, "InternalError", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, seededStore(t), nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestStreamUpgradeThroughMiddleware(t *testing.T) {
	hub := stream.NewHub(4, quiet(), nil)
	srv := newTestServer(t, seededStore(t), hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast(stream.Message{Type: stream.TypeComposite, Data: map[string]string{"entity_id": "3273"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg stream.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, stream.TypeComposite, msg.Type)
}
