package domain

// EntityAccounts lists an entity's account ids on one platform.
type EntityAccounts struct {
	Official   string `yaml:"official"`
	Influencer string `yaml:"influencer"`
}

// Entity is an organization whose presence is tracked across platforms.
type Entity struct {
	ID       string                      `yaml:"id"`
	Name     string                      `yaml:"name"`
	Accounts map[Platform]EntityAccounts `yaml:"accounts"`
}
