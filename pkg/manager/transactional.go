package manager

import (
	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// TransactionalManager implements MetastoreManager over a backend that
// can run a sequence of slice operations inside one backend-managed
// transaction, re-validating the full ancestor chain of every path it is
// given.
type TransactionalManager struct {
	backend storage.TransactionalPersistence
	deps    Deps
}

// NewTransactionalManager builds a MetastoreManager over a
// storage.TransactionalPersistence backend.
func NewTransactionalManager(backend storage.TransactionalPersistence, deps Deps) *TransactionalManager {
	return &TransactionalManager{backend: backend, deps: deps}
}

func runTx[T any](backend storage.TransactionalPersistence, cc *CallContext, f func(storage.BasePersistence) (T, error)) (T, error) {
	var zero T
	res, err := backend.RunInTransaction(cc, func(tx storage.BasePersistence) (any, error) {
		return f(tx)
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

func runReadTx[T any](backend storage.TransactionalPersistence, cc *CallContext, f func(storage.BasePersistence) (T, error)) (T, error) {
	var zero T
	res, err := backend.RunInReadTransaction(cc, func(tx storage.BasePersistence) (any, error) {
		return f(tx)
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

func (m *TransactionalManager) BootstrapPolarisService(cc *CallContext) types.Result[bool] {
	created, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (bool, error) {
		_, created, err := bootstrapCore(cc, tx)
		return created, err
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(created)
}

func (m *TransactionalManager) Purge(cc *CallContext) types.Result[bool] {
	if err := purgeCore(cc, m.backend); err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *TransactionalManager) CreateCatalog(cc *CallContext, catalog *types.Entity, principalRoleIDs []string, storageConfig string) types.Result[*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.Entity, error) {
		return createCatalogCore(cc, tx, catalog, principalRoleIDs, storageConfig)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) CreatePrincipal(cc *CallContext, principal *types.Entity) types.Result[*types.PrincipalSecretCredentials] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.PrincipalSecretCredentials, error) {
		return createPrincipalCore(cc, tx, m.deps.Secrets, principal)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecretCredentials](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) LoadPrincipalSecrets(cc *CallContext, clientID string) types.Result[*types.PrincipalSecret] {
	secret, err := m.backend.LoadPrincipalSecrets(cc, clientID)
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecret](status, extra)
	}
	return types.Ok(secret)
}

func (m *TransactionalManager) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) types.Result[*types.PrincipalSecretCredentials] {
	creds, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.PrincipalSecretCredentials, error) {
		return rotatePrincipalSecretsCore(cc, tx, m.deps.Secrets, clientID, principalID, reset, oldSecretHash)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.PrincipalSecretCredentials](status, extra)
	}
	return types.Ok(creds)
}

func (m *TransactionalManager) CreateEntityIfNotExists(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.Entity, error) {
		return createEntityCore(cc, tx, path, entity)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) CreateEntitiesIfNotExist(cc *CallContext, path types.CatalogPath, entities []*types.Entity) types.Result[[]*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) ([]*types.Entity, error) {
		created := make([]*types.Entity, 0, len(entities))
		for _, e := range entities {
			r, err := createEntityCore(cc, tx, path, e)
			if err != nil {
				return nil, err
			}
			created = append(created, r)
		}
		return created, nil
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[[]*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) UpdateEntityPropertiesIfNotChanged(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.Entity, error) {
		return updateEntityPropertiesCore(cc, tx, path, entity)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) RenameEntity(cc *CallContext, path types.CatalogPath, entityToRename *types.Entity, newPath types.CatalogPath, renamedEntity *types.Entity) types.Result[*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*types.Entity, error) {
		if len(path) > 0 {
			if _, err := resolvePath(cc, tx, path); err != nil {
				return nil, err
			}
		}
		return renameEntityCore(cc, tx, entityToRename, newPath, renamedEntity)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) DropEntityIfExists(cc *CallContext, path types.CatalogPath, entityToDrop *types.Entity, cleanupProperties map[string]string, cleanup bool) types.Result[string] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (string, error) {
		if len(path) > 0 {
			if _, err := resolvePath(cc, tx, path); err != nil {
				return "", err
			}
		}
		return dropEntityCore(cc, tx, m.deps.Secrets, entityToDrop, cleanupProperties, cleanup)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[string](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) GrantPrivilegeOnSecurableToRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool] {
	_, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (bool, error) {
		return true, grantPrivilegeCore(cc, tx, securable, role, privilege)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *TransactionalManager) RevokePrivilegeOnSecurableFromRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool] {
	_, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (bool, error) {
		return true, revokePrivilegeCore(cc, tx, securable, role, privilege)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *TransactionalManager) GrantUsageOnRoleToGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool] {
	_, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (bool, error) {
		return true, grantUsageCore(cc, tx, role, grantee)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *TransactionalManager) RevokeUsageOnRoleFromGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool] {
	_, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (bool, error) {
		return true, revokeUsageCore(cc, tx, role, grantee)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[bool](status, extra)
	}
	return types.Ok(true)
}

func (m *TransactionalManager) LoadGrantsOnSecurable(cc *CallContext, catalogID, id string) types.Result[GrantsView] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (GrantsView, error) {
		return loadGrantsView(cc, tx, catalogID, id, true)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[GrantsView](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) LoadGrantsToGrantee(cc *CallContext, catalogID, id string) types.Result[GrantsView] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (GrantsView, error) {
		return loadGrantsView(cc, tx, catalogID, id, false)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[GrantsView](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) LoadResolvedEntityByID(cc *CallContext, catalogID, id string, typeCode types.EntityType) types.Result[*ResolvedEntity] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (*ResolvedEntity, error) {
		entity, err := tx.LookupEntity(cc, catalogID, id, typeCode)
		if err != nil {
			return nil, err
		}
		return buildResolvedEntity(cc, tx, entity)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*ResolvedEntity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) LoadResolvedEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) types.Result[*ResolvedEntity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) (*ResolvedEntity, error) {
		return loadResolvedEntityByNameCore(cc, tx, catalogID, parentID, typeCode, name)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*ResolvedEntity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) RefreshResolvedEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, entityVersion, grantRecordsVersion int64) types.Result[*EntityDelta] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (*EntityDelta, error) {
		return refreshResolvedEntityCore(cc, tx, catalogID, id, typeCode, entityVersion, grantRecordsVersion)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[*EntityDelta](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) LoadTasks(cc *CallContext, executorID string, limit int) types.Result[[]*types.Entity] {
	result, err := runTx(m.backend, cc, func(tx storage.BasePersistence) ([]*types.Entity, error) {
		return leaseTasks(cc, tx, executorID, limit)
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[[]*types.Entity](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) GetSubscopedCredsForEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, allowList, readLocs, writeLocs []string) types.Result[map[security.CredentialProperty]string] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (map[security.CredentialProperty]string, error) {
		config, err := catalogStorageConfigCore(cc, tx, catalogID)
		if err != nil {
			return nil, err
		}
		creds, err := m.deps.StorageIntegration.GetSubscopedCreds(config, allowList, readLocs, writeLocs)
		if err != nil {
			return nil, fail(types.StatusSubscopeCredsError, err.Error())
		}
		return creds, nil
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[map[security.CredentialProperty]string](status, extra)
	}
	return types.Ok(result)
}

func (m *TransactionalManager) ValidateAccessToLocations(cc *CallContext, catalogID, id string, typeCode types.EntityType, actions, locations []string) types.Result[map[string]security.LocationAccessResult] {
	result, err := runReadTx(m.backend, cc, func(tx storage.BasePersistence) (map[string]security.LocationAccessResult, error) {
		config, err := catalogStorageConfigCore(cc, tx, catalogID)
		if err != nil {
			return nil, err
		}
		res, err := m.deps.StorageIntegration.ValidateAccessToLocations(config, actions, locations)
		if err != nil {
			return nil, fail(types.StatusSubscopeCredsError, err.Error())
		}
		return res, nil
	})
	if err != nil {
		status, extra := statusForError(err)
		return types.Fail[map[string]security.LocationAccessResult](status, extra)
	}
	return types.Ok(result)
}

var _ MetastoreManager = (*TransactionalManager)(nil)
