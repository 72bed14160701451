package aggregator

import (
	"sort"
	"strings"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// Directory indexes the tracked population by entity id.
type Directory struct {
	entities map[string]domain.Entity
	order    []string
}

func NewDirectory(entities []domain.Entity) *Directory {
	d := &Directory{entities: make(map[string]domain.Entity, len(entities))}
	for _, e := range entities {
		if _, dup := d.entities[e.ID]; !dup {
			d.order = append(d.order, e.ID)
		}
		d.entities[e.ID] = e
	}
	return d
}

// Get returns the entity with the given id.
func (d *Directory) Get(id string) (domain.Entity, bool) {
	e, ok := d.entities[id]
	return e, ok
}

// Entities lists the population in configuration order.
func (d *Directory) Entities() []domain.Entity {
	out := make([]domain.Entity, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.entities[id])
	}
	return out
}

// MatchOfficial finds the entities whose official account on the platform is
// accountID, ignoring case. When nothing matches exactly, entities whose
// official id contains accountID are returned instead.
func (d *Directory) MatchOfficial(platform domain.Platform, accountID string) []domain.Entity {
	needle := domain.NormalizeID(accountID)
	if needle == "" {
		return nil
	}

	var exact, partial []domain.Entity
	for _, id := range d.order {
		e := d.entities[id]
		official := domain.NormalizeID(e.Accounts[platform].Official)
		switch {
		case official == "":
		case official == needle:
			exact = append(exact, e)
		case strings.Contains(official, needle):
			partial = append(partial, e)
		}
	}

	out := exact
	if len(out) == 0 {
		out = partial
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
