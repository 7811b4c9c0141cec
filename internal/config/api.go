package config

import (
	"fmt"

	"github.com/JaimeStill/lexis/pkg/middleware"
	"github.com/JaimeStill/lexis/pkg/pagination"
)

const EnvAPIBasePath = "LEXIS_API_BASE_PATH"

var corsEnv = &middleware.CORSEnv{
	Enabled:          "LEXIS_CORS_ENABLED",
	Origins:          "LEXIS_CORS_ORIGINS",
	AllowedMethods:   "LEXIS_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "LEXIS_CORS_ALLOWED_HEADERS",
	AllowCredentials: "LEXIS_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "LEXIS_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "LEXIS_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "LEXIS_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds the status API's routing, CORS, and pagination settings.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
}

// Finalize applies defaults and environment overrides to the API config and
// its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	envString(EnvAPIBasePath, &c.BasePath)

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	mergeString(&c.BasePath, overlay.BasePath)
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}
