package config

import (
	"fmt"

	"github.com/rendis/taskchain/pkg/schema"
)

// Defaults for DesignConfig.
const (
	DefaultRegistrationCapacity          = 256
	DefaultMaxConcurrentActionExecutions = 2
	DefaultMaxFailureRetry               = 3
)

// DBParams sizes the program database.
type DBParams struct {
	RegistrationCapacity int `yaml:"registration_capacity" json:"registration_capacity"`
}

// DesignConfig holds the tunables applied when a program is built.
// It is copied into the program and never mutated afterwards.
type DesignConfig struct {
	DBParams                      DBParams `yaml:"db_params" json:"db_params"`
	MaxConcurrentActionExecutions int      `yaml:"max_concurrent_action_executions" json:"max_concurrent_action_executions"`
	MaxFailureRetry               int      `yaml:"max_failure_retry" json:"max_failure_retry"`
}

// DefaultDesignConfig returns the stock configuration.
func DefaultDesignConfig() DesignConfig {
	return DesignConfig{
		DBParams:                      DBParams{RegistrationCapacity: DefaultRegistrationCapacity},
		MaxConcurrentActionExecutions: DefaultMaxConcurrentActionExecutions,
		MaxFailureRetry:               DefaultMaxFailureRetry,
	}
}

// Validate rejects values that cannot build a program.
func (c DesignConfig) Validate() error {
	if c.DBParams.RegistrationCapacity <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"db_params.registration_capacity must be positive, got %d", c.DBParams.RegistrationCapacity)
	}
	if c.MaxConcurrentActionExecutions <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"max_concurrent_action_executions must be positive, got %d", c.MaxConcurrentActionExecutions)
	}
	if c.MaxFailureRetry < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"max_failure_retry must not be negative, got %d", c.MaxFailureRetry)
	}
	return nil
}

// Merge overlays the non-zero fields of a program document's config block.
func (c DesignConfig) Merge(doc *schema.ConfigDocument) DesignConfig {
	if doc == nil {
		return c
	}
	if doc.RegistrationCapacity != 0 {
		c.DBParams.RegistrationCapacity = doc.RegistrationCapacity
	}
	if doc.MaxConcurrentActionExecutions != 0 {
		c.MaxConcurrentActionExecutions = doc.MaxConcurrentActionExecutions
	}
	return c
}

func (c DesignConfig) String() string {
	return fmt.Sprintf("capacity=%d concurrency=%d retries=%d",
		c.DBParams.RegistrationCapacity, c.MaxConcurrentActionExecutions, c.MaxFailureRetry)
}
