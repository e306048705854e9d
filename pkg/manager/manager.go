// Package manager implements the catalog metastore's public operation
// surface over a pluggable storage.BasePersistence backend, in one of two
// strategies depending on which refinement the backend satisfies.
package manager

import (
	"time"

	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// CallContext threads cancellation, diagnostics, a clock, and
// configuration through a manager call the way storage.CallContext does
// for the persistence layer below it.
type CallContext = storage.CallContext

// DefaultTaskTimeout is used when the call context carries no
// TASK_TIMEOUT_MILLIS_CONFIG entry.
const DefaultTaskTimeout = 5 * time.Minute

// TaskTimeout returns the configured task staleness timeout, falling
// back to DefaultTaskTimeout.
func TaskTimeout(cc *CallContext) time.Duration {
	if cc == nil || cc.Config == nil {
		return DefaultTaskTimeout
	}
	raw, ok := cc.Config["TASK_TIMEOUT_MILLIS_CONFIG"]
	if !ok {
		return DefaultTaskTimeout
	}
	ms, err := parseMillis(raw)
	if err != nil || ms <= 0 {
		return DefaultTaskTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// GrantsView is the result of loading the grants attached to an entity:
// the grant-records version they were read at, the records themselves,
// and the counterparty entity of each.
type GrantsView struct {
	GrantRecordsVersion int64
	Grants              []types.GrantRecord
	Counterparties      []*types.Entity
}

// ResolvedEntity bundles an entity with the grant information a caller
// needs to reason about its access: grants on it as a securable, and,
// when it is itself a grantee, grants to it.
type ResolvedEntity struct {
	Entity           *types.Entity
	GrantsOnSecurable GrantsView
	GrantsToGrantee   *GrantsView
}

// EntityDelta is refreshResolvedEntity's result: only the fields that
// changed since the caller's last known versions are populated.
type EntityDelta struct {
	Unchanged   bool
	Entity      *types.Entity
	GrantsView  *GrantsView
}

// MetastoreManager is the full operation surface described for the
// catalog metastore, implemented identically in contract by
// TransactionalManager and AtomicManager.
type MetastoreManager interface {
	BootstrapPolarisService(cc *CallContext) types.Result[bool]
	Purge(cc *CallContext) types.Result[bool]

	CreateCatalog(cc *CallContext, catalog *types.Entity, principalRoleIDs []string, storageConfig string) types.Result[*types.Entity]
	CreatePrincipal(cc *CallContext, principal *types.Entity) types.Result[*types.PrincipalSecretCredentials]

	LoadPrincipalSecrets(cc *CallContext, clientID string) types.Result[*types.PrincipalSecret]
	RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) types.Result[*types.PrincipalSecretCredentials]

	CreateEntityIfNotExists(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity]
	CreateEntitiesIfNotExist(cc *CallContext, path types.CatalogPath, entities []*types.Entity) types.Result[[]*types.Entity]
	UpdateEntityPropertiesIfNotChanged(cc *CallContext, path types.CatalogPath, entity *types.Entity) types.Result[*types.Entity]
	RenameEntity(cc *CallContext, path types.CatalogPath, entityToRename *types.Entity, newPath types.CatalogPath, renamedEntity *types.Entity) types.Result[*types.Entity]
	DropEntityIfExists(cc *CallContext, path types.CatalogPath, entityToDrop *types.Entity, cleanupProperties map[string]string, cleanup bool) types.Result[string]

	GrantPrivilegeOnSecurableToRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool]
	RevokePrivilegeOnSecurableFromRole(cc *CallContext, securable, role *types.Entity, privilege types.PrivilegeCode) types.Result[bool]
	GrantUsageOnRoleToGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool]
	RevokeUsageOnRoleFromGrantee(cc *CallContext, role, grantee *types.Entity) types.Result[bool]

	LoadGrantsOnSecurable(cc *CallContext, catalogID, id string) types.Result[GrantsView]
	LoadGrantsToGrantee(cc *CallContext, catalogID, id string) types.Result[GrantsView]

	LoadResolvedEntityByID(cc *CallContext, catalogID, id string, typeCode types.EntityType) types.Result[*ResolvedEntity]
	LoadResolvedEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) types.Result[*ResolvedEntity]
	RefreshResolvedEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, entityVersion, grantRecordsVersion int64) types.Result[*EntityDelta]

	LoadTasks(cc *CallContext, executorID string, limit int) types.Result[[]*types.Entity]

	GetSubscopedCredsForEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType, allowList, readLocs, writeLocs []string) types.Result[map[security.CredentialProperty]string]
	ValidateAccessToLocations(cc *CallContext, catalogID, id string, typeCode types.EntityType, actions, locations []string) types.Result[map[string]security.LocationAccessResult]
}

// Deps bundles the collaborators a manager strategy needs beyond
// persistence: secrets and storage-credential vending. Both have
// sensible reference implementations in pkg/security.
type Deps struct {
	Secrets            security.UserSecretsManager
	StorageIntegration security.StorageIntegration
}

// New selects TransactionalManager or AtomicManager depending on which
// refinement backend satisfies, preferring the stronger transactional
// guarantee when a backend offers both.
func New(backend storage.BasePersistence, deps Deps) MetastoreManager {
	if tx, ok := backend.(storage.TransactionalPersistence); ok {
		return NewTransactionalManager(tx, deps)
	}
	if atomic, ok := backend.(storage.AtomicPersistence); ok {
		return NewAtomicManager(atomic, deps)
	}
	panic("manager: backend satisfies neither TransactionalPersistence nor AtomicPersistence")
}
