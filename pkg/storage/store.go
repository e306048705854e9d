package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/icebase/metastore/pkg/types"
)

// CallContext carries diagnostics, a clock, and configuration through
// every persistence call, the way every Metastore Manager operation and
// backend call is threaded with one in spec.
type CallContext struct {
	Ctx    context.Context
	Logger zerolog.Logger
	Clock  func() time.Time
	Config map[string]string
}

// Now returns cc.Clock() if set, else time.Now(). Tests substitute Clock
// to advance time deterministically past TASK_TIMEOUT_MILLIS_CONFIG.
func (cc *CallContext) Now() time.Time {
	if cc != nil && cc.Clock != nil {
		return cc.Clock()
	}
	return time.Now()
}

// Cancelled reports whether the call context's Ctx has been cancelled.
// Long iterations (task leasing, bulk updates) check this between
// per-entity operations.
func (cc *CallContext) Cancelled() bool {
	if cc == nil || cc.Ctx == nil {
		return false
	}
	select {
	case <-cc.Ctx.Done():
		return true
	default:
		return false
	}
}

// EntityKey identifies an entity by its globally-scoped id, independent
// of name or parent.
type EntityKey struct {
	CatalogID string
	ID        string
}

// EntityVersions is the pair of change-tracking counters used for
// optimistic concurrency.
type EntityVersions struct {
	EntityVersion       int64
	GrantRecordsVersion int64
}

// EntitiesSlice is the read/write primitive over entities addressed by id.
type EntitiesSlice interface {
	LookupEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType) (*types.Entity, error)
	LookupEntities(cc *CallContext, keys []EntityKey) ([]*types.Entity, error)
	// WriteEntity persists entity. original, when non-nil, is the witness
	// of the pre-state the caller last observed; atomic backends use it
	// for compare-and-swap and transactional backends use it only to
	// detect a stale in-transaction read.
	WriteEntity(cc *CallContext, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error
	WriteEntities(cc *CallContext, entities []*types.Entity, originals []*types.Entity) error
	DeleteEntity(cc *CallContext, entity *types.Entity) error
}

// ActiveNameSlice is the read primitive over the active-name index:
// (catalogId, parentId, typeCode, name) -> entity.
type ActiveNameSlice interface {
	LookupEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (*types.Entity, error)
	LookupEntityIDAndSubTypeByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (id string, subType types.SubType, found bool, err error)
	ListEntities(cc *CallContext, catalogID, parentID string, typeCode types.EntityType) ([]*types.Entity, error)
	HasChildren(cc *CallContext, optionalTypeCode types.EntityType, catalogID, parentID string) (bool, error)
}

// ChangeTrackingSlice is the read primitive over version counters,
// usable without fetching the full entity payload.
type ChangeTrackingSlice interface {
	LookupEntityVersions(cc *CallContext, keys []EntityKey) (map[EntityKey]EntityVersions, error)
	LookupEntityGrantRecordsVersion(cc *CallContext, catalogID, id string) (int64, error)
}

// GrantRecordsSlice is the read/write primitive over grant records.
type GrantRecordsSlice interface {
	WriteToGrantRecords(cc *CallContext, record types.GrantRecord) error
	DeleteFromGrantRecords(cc *CallContext, record types.GrantRecord) error
	DeleteAllEntityGrantRecords(cc *CallContext, entity *types.Entity, onGrantee, onSecurable bool) error
	LoadAllGrantRecordsOnGrantee(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error)
	LoadAllGrantRecordsOnSecurable(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error)
	LookupGrantRecord(cc *CallContext, securableCatalogID, securableID, granteeCatalogID, granteeID string, priv types.PrivilegeCode) (*types.GrantRecord, error)
}

// SecretsSlice is the read/write primitive over principal secrets.
// GenerateNewPrincipalSecrets and RotatePrincipalSecrets are the only
// operations that ever see plaintext: they persist a hash and return the
// plaintext once, in PrincipalSecretCredentials.
type SecretsSlice interface {
	LoadPrincipalSecrets(cc *CallContext, clientID string) (*types.PrincipalSecret, error)
	GenerateNewPrincipalSecrets(cc *CallContext, principalName, principalID string) (*types.PrincipalSecretCredentials, error)
	RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error)
	DeletePrincipalSecrets(cc *CallContext, clientID, principalID string) error
}

// StorageIntegrationSlice is the read/write primitive over a catalog's
// persisted storage-integration configuration. The configuration is an
// opaque string (JSON) the security.StorageIntegration implementation
// interprets; this slice only stores and retrieves it.
type StorageIntegrationSlice interface {
	CreateStorageIntegration(cc *CallContext, catalogID, entityID, config string) error
	PersistStorageIntegrationIfNeeded(cc *CallContext, entity *types.Entity, config string) error
	LoadStorageIntegration(cc *CallContext, entity *types.Entity) (config string, found bool, err error)
}

// BasePersistence is the full backend contract: identity generation plus
// every slice, composed into one aggregate the way the teacher's Store
// interface groups per-kind CRUD into one handle.
type BasePersistence interface {
	GenerateNewID(cc *CallContext) (string, error)
	EntitiesSlice
	ActiveNameSlice
	ChangeTrackingSlice
	GrantRecordsSlice
	SecretsSlice
	StorageIntegrationSlice
	DeleteAll(cc *CallContext) error
	Close() error
}

// TransactionFunc is the body of a backend-managed transaction. It
// receives a BasePersistence scoped to that transaction so reads inside
// it observe the transaction's own writes.
type TransactionFunc func(tx BasePersistence) (any, error)

// ActionFunc is TransactionFunc's side-effect-only counterpart.
type ActionFunc func(tx BasePersistence) error

// TransactionalPersistence is the refinement backends expose when they
// can run a sequence of slice operations inside one backend-managed
// transaction with serializable or snapshot-with-version-check semantics.
type TransactionalPersistence interface {
	BasePersistence
	RunInTransaction(cc *CallContext, f TransactionFunc) (any, error)
	RunInReadTransaction(cc *CallContext, f TransactionFunc) (any, error)
	RunActionInTransaction(cc *CallContext, f ActionFunc) error
}

// AtomicPersistence is the refinement backends expose when every listed
// operation is individually atomic: WriteEntity returns
// *EntityAlreadyExistsError when creating over a same-id or
// same-active-name record, and *RetryOnConcurrencyError when original's
// versions no longer match the stored record.
type AtomicPersistence interface {
	BasePersistence
}
