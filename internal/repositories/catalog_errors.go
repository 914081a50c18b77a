package repositories

import "fmt"

// CatalogNotFoundError reports a shape or delivery method missing from a non-database catalog
// source. It satisfies RepositoryError.
type CatalogNotFoundError struct {
	Kind string
	ID   string
}

func (e *CatalogNotFoundError) Error() string {
	return fmt.Sprintf("catalog: %s %q not found", e.Kind, e.ID)
}

func (e *CatalogNotFoundError) IsNotFound() bool    { return true }
func (e *CatalogNotFoundError) IsConflict() bool    { return false }
func (e *CatalogNotFoundError) IsUnavailable() bool { return false }
