package config

const (
	EnvGraphURI      = "LEXIS_GRAPH_URI"
	EnvGraphUser     = "LEXIS_GRAPH_USER"
	EnvGraphPassword = "LEXIS_GRAPH_PASSWORD"
	EnvGraphDatabase = "LEXIS_GRAPH_DATABASE"
)

// GraphConfig locates the concept graph store. An empty URI disables
// graph projection.
type GraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// Enabled reports whether a graph store is configured.
func (c *GraphConfig) Enabled() bool {
	return c.URI != ""
}

func (c *GraphConfig) Finalize() error {
	if c.User == "" {
		c.User = "neo4j"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 50
	}
	envString(EnvGraphURI, &c.URI)
	envString(EnvGraphUser, &c.User)
	envString(EnvGraphPassword, &c.Password)
	envString(EnvGraphDatabase, &c.Database)
	return nil
}

func (c *GraphConfig) Merge(overlay *GraphConfig) {
	mergeString(&c.URI, overlay.URI)
	mergeString(&c.User, overlay.User)
	mergeString(&c.Password, overlay.Password)
	mergeString(&c.Database, overlay.Database)
	if overlay.PoolSize != 0 {
		c.PoolSize = overlay.PoolSize
	}
}
