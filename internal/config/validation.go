package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks every section against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
