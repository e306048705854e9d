package manager

import (
	"fmt"

	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// findRoot looks up the ROOT entity. It returns the slice's wrapped
// storage.ErrNotFound before bootstrapPolarisService has run.
func findRoot(cc *CallContext, backend storage.BasePersistence) (*types.Entity, error) {
	return backend.LookupEntityByName(cc, types.NullID, types.NullID, types.EntityTypeRoot, rootEntityName)
}

// createIfAbsentByName looks an entity up by its active-name slot and
// creates it if missing, tolerating a concurrent creator winning the race.
func createIfAbsentByName(cc *CallContext, backend storage.BasePersistence, catalogID, parentID string, typeCode types.EntityType, name string, configure func(*types.Entity)) (*types.Entity, error) {
	existing, err := backend.LookupEntityByName(cc, catalogID, parentID, typeCode, name)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	id, err := backend.GenerateNewID(cc)
	if err != nil {
		return nil, err
	}
	e := &types.Entity{
		CatalogID: catalogID,
		ID:        id,
		ParentID:  parentID,
		TypeCode:  typeCode,
		Name:      name,
	}
	configure(e)
	stampNewEntity(cc, e)

	if err := backend.WriteEntity(cc, e, true, nil); err != nil {
		if already, ok := storage.IsEntityAlreadyExists(err); ok {
			return already.Existing, nil
		}
		return nil, err
	}
	return e, nil
}

// bootstrapCore creates the realm's closure of required entities and
// grants — ROOT, the root PRINCIPAL, the service_admin PRINCIPAL_ROLE, a
// SERVICE_MANAGE_ACCESS grant from ROOT to the role, and a usage grant
// from the role to the root principal — or confirms they already exist.
// Every step is individually idempotent by name or by grant identity, so
// calling this again after a crash partway through resumes rather than
// double-applying.
func bootstrapCore(cc *CallContext, backend storage.BasePersistence) (rootID string, created bool, err error) {
	root, err := findRoot(cc, backend)
	switch {
	case err == nil:
	case isNotFound(err):
		root, err = createIfAbsentByName(cc, backend, types.NullID, types.NullID, types.EntityTypeRoot, rootEntityName, func(*types.Entity) {})
		if err != nil {
			return "", false, fmt.Errorf("bootstrap: create root: %w", err)
		}
		created = true
	default:
		return "", false, err
	}

	principal, err := createIfAbsentByName(cc, backend, types.NullID, root.ID, types.EntityTypePrincipal, rootPrincipalName, func(e *types.Entity) {
		e.InternalProperties = map[string]string{}
	})
	if err != nil {
		return "", false, fmt.Errorf("bootstrap: create root principal: %w", err)
	}

	role, err := createIfAbsentByName(cc, backend, types.NullID, root.ID, types.EntityTypePrincipalRole, serviceAdminRoleName, func(*types.Entity) {})
	if err != nil {
		return "", false, fmt.Errorf("bootstrap: create service_admin role: %w", err)
	}

	root, role, err = applyGrant(cc, backend, root, role, types.PrivilegeServiceManageAccess)
	if err != nil {
		return "", false, fmt.Errorf("bootstrap: grant service manage access: %w", err)
	}

	if _, _, err := applyGrant(cc, backend, role, principal, types.PrivilegePrincipalRoleUsage); err != nil {
		return "", false, fmt.Errorf("bootstrap: grant role usage to root principal: %w", err)
	}

	return root.ID, created, nil
}

// backfillRoot is loadResolvedEntityByName's fallback for realms created
// before ROOT existed: it runs the same create-then-grant sequence as
// bootstrapCore and returns the ROOT entity. A crash between the two steps
// leaves the realm inconsistent until the next bootstrap or backfill
// attempt completes both; this mirrors the documented risk rather than
// inventing a two-phase fix.
func backfillRoot(cc *CallContext, backend storage.BasePersistence) (*types.Entity, error) {
	rootID, _, err := bootstrapCore(cc, backend)
	if err != nil {
		return nil, err
	}
	return backend.LookupEntity(cc, types.NullID, rootID, types.EntityTypeRoot)
}

func purgeCore(cc *CallContext, backend storage.BasePersistence) error {
	return backend.DeleteAll(cc)
}
