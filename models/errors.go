package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages. Use errors.Is to check them.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrProviderProtocol    = errors.New("embedding provider protocol error")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrNotFound            = errors.New("not found")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrCatalogLoad         = errors.New("catalog load failed")
)

// CatalogLoadError reports a catalog or banned-word document that could not
// be loaded. It matches ErrCatalogLoad.
type CatalogLoadError struct {
	Source string
	Err    error
}

func (e *CatalogLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("catalog load failed: %v", e.Err)
	}
	return fmt.Sprintf("catalog load failed (%s): %v", e.Source, e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

func (e *CatalogLoadError) Is(target error) bool { return target == ErrCatalogLoad }

// NotFoundError is returned when a title lookup misses. It matches ErrNotFound.
type NotFoundError struct {
	Title string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("The title «%s» was not found.", e.Title)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
