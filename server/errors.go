package server

import "errors"

var (
	// ErrFactoryRequired is returned when a service factory is not provided.
	ErrFactoryRequired = errors.New("service factory required")
)
