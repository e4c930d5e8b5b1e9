package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/opsward/geryon/pkg/domain/types"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Categories []Category `toml:"category"`
}

// Category represents an issue category configuration
type Category struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Validate checks if the Category is valid
func (c *Category) Validate() error {
	id := types.CategoryID(c.ID)
	if err := id.Validate(); err != nil {
		return goerr.Wrap(err, "invalid category ID")
	}
	if c.Name == "" {
		return goerr.New("category name is required", goerr.V("id", c.ID))
	}
	return nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	categoryIDs := make(map[string]bool)
	for _, cat := range a.Categories {
		if err := cat.Validate(); err != nil {
			return goerr.Wrap(ErrInvalidConfig, err.Error())
		}
		if categoryIDs[cat.ID] {
			return goerr.Wrap(ErrDuplicateCategoryID, "duplicate category", goerr.V("id", cat.ID))
		}
		categoryIDs[cat.ID] = true
	}

	return nil
}

// CategoryIDs returns the configured category identifiers
func (a *AppConfig) CategoryIDs() []types.CategoryID {
	ids := make([]types.CategoryID, len(a.Categories))
	for i, cat := range a.Categories {
		ids[i] = types.CategoryID(cat.ID)
	}
	return ids
}

// LoadAppConfiguration loads the application configuration from a TOML file
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(ErrConfigNotFound, err.Error(), goerr.V("path", path))
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V("path", path))
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V("path", path))
	}

	return &config, nil
}
