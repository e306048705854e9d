package manager

import (
	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// maxConcurrencyRetries bounds how many times an AtomicManager operation
// retries after a *storage.RetryOnConcurrencyError before giving up and
// surfacing TARGET_ENTITY_CONCURRENTLY_MODIFIED to the caller.
const maxConcurrencyRetries = 5

// AtomicManager implements MetastoreManager over a backend whose every
// slice call is individually compare-and-swap atomic, with no
// backend-managed transaction. Multi-step operations (createCatalog,
// dropEntityIfExists, grant/revoke's dual version bump) apply their steps
// one at a time, each idempotent by id or by grant identity, so a retry
// after a partial failure resumes rather than double-applying.
type AtomicManager struct {
	backend storage.AtomicPersistence
	deps    Deps
}

// NewAtomicManager builds a MetastoreManager over a
// storage.AtomicPersistence backend.
func NewAtomicManager(backend storage.AtomicPersistence, deps Deps) *AtomicManager {
	return &AtomicManager{backend: backend, deps: deps}
}

func retry[T any](f func() (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt < maxConcurrencyRetries; attempt++ {
		var v T
		v, err = f()
		if err == nil {
			return v, nil
		}
		if !storage.IsRetryOnConcurrency(err) {
			return zero, err
		}
	}
	return zero, err
}

func (m *AtomicManager) BootstrapPolarisService(cc *CallContext) types.Result[bool] {
	created, err := retry(func() (bool, error) {
		_, created, err := bootstrapCore(cc, m.backend)
		return created, err
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(created)
}

func (m *AtomicManager) Purge(cc *CallContext) types.Result[bool] {
	if err := purgeCore(cc, m.backend); err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *AtomicManager) CreateCatalog(cc *CallContext, catalog *types.Entity, principalRoleIDs []string, storageConfig string) types.Result[*types.Entity] {
	result, err := retry(func() (*types.Entity, error) {
		return createCatalogCore(cc, m.backend, catalog, principalRoleIDs, storageConfig)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) CreatePrincipal(cc *CallContext, principal *types.Entity) types.Result[*types.PrincipalSecretCredentials] {
	result, err := retry(func() (*types.PrincipalSecretCredentials, error) {
		return createPrincipalCore(cc, m.backend, m.deps.Secrets, principal)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecretCredentials](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) LoadPrincipalSecrets(cc *CallContext, clientID string) types.Result[*types.PrincipalSecret] {
	secret, err := m.backend.LoadPrincipalSecrets(cc, clientID)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecret](status, extra)
	}
	return types.Ok(secret)
}

func (m *AtomicManager) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) types.Result[*types.PrincipalSecretCredentials] {
	creds, err := retry(func() (*types.PrincipalSecretCredentials, error) {
		return rotatePrincipalSecretsCore(cc, m.backend, m.deps.Secrets, clientID, principalID, reset, oldSecretHash)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecretCredentials](status, extra)
	}
	return types.Ok(creds)
}

// CreateEntityIfNotExists looks up (catalogId, parentId) directly rather
// than re-validating the full ancestor chain, matching the common-case
// behavior documented for the atomic strategy. path is still used to
// resolve which catalog/parent to create under.
func (m *AtomicManager) CreateEntityIfNotExists(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity] {
	result, err := retry(func() (*types.Entity, error) {
		created, err := createEntityCore(cc, m.backend, path, entity)
		if err != nil {
			return nil, err
		}
		if _, err := m.backend.LookupEntity(cc, created.CatalogID, created.ParentID, ""); err != nil && !isNotFound(err) {
			return nil, err
		} else if isNotFound(err) && created.ParentID != types.NullID {
			return nil, fail(types.StatusCatalogPathCannotBeResolved, "parent vanished concurrently with create")
		}
		return created, nil
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) CreateEntitiesIfNotExist(cc *CallContext, path types.CatalogPath, entities []*types.Entity) types.Result[[]*types.Entity] {
	created := make([]*types.Entity, 0, len(entities))
	for _, e := range entities {
		r := m.CreateEntityIfNotExists(cc, path, e)
		if !r.IsSuccess() {
			return types.Fail[[]*types.Entity](r.Status, r.ExtraInformation)
		}
		created = append(created, r.Value)
	}
	return types.Ok(created)
}

func (m *AtomicManager) UpdateEntityPropertiesIfNotChanged(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity] {
	result, err := retry(func() (*types.Entity, error) {
		return updateEntityPropertiesCore(cc, m.backend, path, entity)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

// RenameEntity re-checks the destination parent's presence after the
// write, since the atomic strategy does not hold a transaction across the
// resolve-then-write sequence.
func (m *AtomicManager) RenameEntity(cc *CallContext, path types.CatalogPath, entityToRename *types.Entity, newPath types.CatalogPath, renamedEntity *types.Entity) types.Result[*types.Entity] {
	result, err := retry(func() (*types.Entity, error) {
		next, err := renameEntityCore(cc, m.backend, entityToRename, newPath, renamedEntity)
		if err != nil {
			return nil, err
		}
		if next.ParentID != types.NullID {
			if _, err := m.backend.LookupEntity(cc, next.CatalogID, next.ParentID, ""); isNotFound(err) {
				return nil, fail(types.StatusCatalogPathCannotBeResolved, "destination parent vanished concurrently with rename")
			} else if err != nil {
				return nil, err
			}
		}
		return next, nil
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) DropEntityIfExists(cc *CallContext, path types.CatalogPath, entityToDrop *types.Entity, cleanupProperties map[string]string, cleanup bool) types.Result[string] {
	result, err := retry(func() (string, error) {
		return dropEntityCore(cc, m.backend, m.deps.Secrets, entityToDrop, cleanupProperties, cleanup)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[string](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) GrantPrivilegeOnSecurableToRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool] {
	_, err := retry(func() (bool, error) {
		return true, grantPrivilegeCore(cc, m.backend, securable, role, privilege)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *AtomicManager) RevokePrivilegeOnSecurableFromRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool] {
	_, err := retry(func() (bool, error) {
		return true, revokePrivilegeCore(cc, m.backend, securable, role, privilege)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *AtomicManager) GrantUsageOnRoleToGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool] {
	_, err := retry(func() (bool, error) {
		return true, grantUsageCore(cc, m.backend, role, grantee)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *AtomicManager) RevokeUsageOnRoleFromGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool] {
	_, err := retry(func() (bool, error) {
		return true, revokeUsageCore(cc, m.backend, role, grantee)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *AtomicManager) LoadGrantsOnSecurable(cc *CallContext, catalogID, id string) types.Result[GrantsView] {
	view, err := loadGrantsView(cc, m.backend, catalogID, id, true)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[GrantsView](status, extra)
	}
	return types.Ok(view)
}

func (m *AtomicManager) LoadGrantsToGrantee(cc *CallContext, catalogID, id string) types.Result[GrantsView] {
	view, err := loadGrantsView(cc, m.backend, catalogID, id, false)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[GrantsView](status, extra)
	}
	return types.Ok(view)
}

func (m *AtomicManager) LoadResolvedEntityByID(cc *CallContext, catalogID, id string, typeCode types.EntityType) types.Result[*ResolvedEntity] {
	entity, err := m.backend.LookupEntity(cc, catalogID, id, typeCode)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*ResolvedEntity](status, extra)
	}
	re, err := buildResolvedEntity(cc, m.backend, entity)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*ResolvedEntity](status, extra)
	}
	return types.Ok(re)
}

func (m *AtomicManager) LoadResolvedEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) types.Result[*ResolvedEntity] {
	result, err := retry(func() (*ResolvedEntity, error) {
		return loadResolvedEntityByNameCore(cc, m.backend, catalogID, parentID, typeCode, name)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*ResolvedEntity](status, extra)
	}
	return types.Ok(result)
}

func (m *AtomicManager) RefreshResolvedEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, entityVersion, grantRecordsVersion int64) types.Result[*EntityDelta] {
	delta, err := refreshResolvedEntityCore(cc, m.backend, catalogID, id, typeCode, entityVersion, grantRecordsVersion)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*EntityDelta](status, extra)
	}
	return types.Ok(delta)
}

func (m *AtomicManager) LoadTasks(cc *CallContext, executorID string, limit int) types.Result[[]*types.Entity] {
	leased, err := leaseTasks(cc, m.backend, executorID, limit)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[[]*types.Entity](status, extra)
	}
	return types.Ok(leased)
}

func (m *AtomicManager) GetSubscopedCredsForEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, allowList, readLocs, writeLocs []string) types.Result[map[security.CredentialProperty]string] {
	config, err := catalogStorageConfigCore(cc, m.backend, catalogID)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[map[security.CredentialProperty]string](status, extra)
	}
	creds, err := m.deps.StorageIntegration.GetSubscopedCreds(config, allowList, readLocs, writeLocs)
	if err != nil {
		return types.Fail[map[security.CredentialProperty]string](types.StatusSubscopeCredsError, err.Error())
	}
	return types.Ok(creds)
}

func (m *AtomicManager) ValidateAccessToLocations(cc *CallContext, catalogID, id string, typeCode types.EntityType, actions, locations []string) types.Result[map[string]security.LocationAccessResult] {
	config, err := catalogStorageConfigCore(cc, m.backend, catalogID)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[map[string]security.LocationAccessResult](status, extra)
	}
	res, err := m.deps.StorageIntegration.ValidateAccessToLocations(config, actions, locations)
	if err != nil {
		return types.Fail[map[string]security.LocationAccessResult](types.StatusSubscopeCredsError, err.Error())
	}
	return types.Ok(res)
}

var _ MetastoreManager = (*AtomicManager)(nil)
