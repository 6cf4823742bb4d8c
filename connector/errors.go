package connector

import (
	"errors"
	"fmt"
)

// ConnectionMissingError means the connector needs an active service
// connection and the user has none.
type ConnectionMissingError struct {
	Service string
}

func (e *ConnectionMissingError) Error() string {
	return fmt.Sprintf("%s connection not found or inactive", e.Service)
}

// APIError is a non-success response from an external service.
type APIError struct {
	Service string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error (%d)", e.Service, e.Status)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.Status, e.Message)
}

// ConfigError means a required config field is missing or malformed.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("missing required config field %q", e.Field)
	}
	return fmt.Sprintf("config field %q: %s", e.Field, e.Detail)
}

// IsConnectionMissing reports whether err is a ConnectionMissingError.
func IsConnectionMissing(err error) bool {
	var target *ConnectionMissingError
	return errors.As(err, &target)
}
