// Package resolver translates a catalog path into the (catalogId, parentId)
// pair the metastore manager addresses entities by, re-validating every
// ancestor along the way.
package resolver

import (
	"fmt"

	"github.com/icebase/metastore/pkg/log"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// Result is what Resolve produces: the catalog scope and immediate parent
// for the entity the path addresses, plus the ancestors that were
// re-validated along the way (index 0 is the catalog, if any).
type Result struct {
	CatalogID string
	ParentID  string
	Ancestors []*types.Entity
}

// Resolver resolves catalogPaths against a BasePersistence's entities
// slice. It performs no writes.
type Resolver struct {
	backend storage.BasePersistence
}

// New returns a Resolver backed by backend. When backend is itself scoped
// to a single transaction (the handle a TransactionalPersistence callback
// receives), Resolve's ancestor lookups observe that transaction's writes.
func New(backend storage.BasePersistence) *Resolver {
	return &Resolver{backend: backend}
}

// Resolve walks path in order, re-looking-up every ancestor by id and
// verifying its EntityVersion against ExpectedVersion when the caller
// pinned one. An empty path resolves to the root: catalogId is the null-id
// sentinel and parentId is the root's id.
//
// It fails with StatusCatalogPathCannotBeResolved if any ancestor is
// missing or version-mismatched.
func (r *Resolver) Resolve(cc *storage.CallContext, path types.CatalogPath, rootID string) (Result, error) {
	if len(path) == 0 {
		return Result{CatalogID: types.NullID, ParentID: rootID}, nil
	}

	ancestors := make([]*types.Entity, 0, len(path))
	for i, entry := range path {
		entity, err := r.backend.LookupEntity(cc, entry.CatalogID, entry.ID, entry.TypeCode)
		if err != nil {
			log.WithComponent("resolver").Debug().
				Str("entityId", entry.ID).
				Int("pathIndex", i).
				Msg("catalog path entry not found")
			return Result{}, resolveFailure(entry, "ancestor not found")
		}
		if entry.ExpectedVersion != 0 && entity.EntityVersion != entry.ExpectedVersion {
			return Result{}, resolveFailure(entry, fmt.Sprintf("ancestor version mismatch: have %d, want %d", entity.EntityVersion, entry.ExpectedVersion))
		}
		ancestors = append(ancestors, entity)
	}

	catalog := ancestors[0]
	parent := ancestors[len(ancestors)-1]

	catalogID := catalog.ID
	if catalog.TypeCode != types.EntityTypeCatalog {
		// path[0] was not a catalog: this is a top-level, catalog-less entity
		// (e.g. a PRINCIPAL hanging off ROOT).
		catalogID = types.NullID
	}

	return Result{CatalogID: catalogID, ParentID: parent.ID, Ancestors: ancestors}, nil
}

// ResolveError is returned by Resolve on failure; its Status is always
// StatusCatalogPathCannotBeResolved.
type ResolveError struct {
	Status types.Status
	Entry  types.PathEntry
	Reason string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("catalog path cannot be resolved at entity %s: %s", e.Entry.ID, e.Reason)
}

func resolveFailure(entry types.PathEntry, reason string) error {
	return &ResolveError{Status: types.StatusCatalogPathCannotBeResolved, Entry: entry, Reason: reason}
}
