package types

import "time"

// EntityType identifies the kind of a catalog entity.
type EntityType string

const (
	EntityTypeRoot          EntityType = "ROOT"
	EntityTypePrincipal     EntityType = "PRINCIPAL"
	EntityTypePrincipalRole EntityType = "PRINCIPAL_ROLE"
	EntityTypeCatalog       EntityType = "CATALOG"
	EntityTypeCatalogRole   EntityType = "CATALOG_ROLE"
	EntityTypeNamespace     EntityType = "NAMESPACE"
	EntityTypeTableLike     EntityType = "TABLE_LIKE"
	EntityTypeTask          EntityType = "TASK"
)

// SubType refines an EntityType, e.g. distinguishing tables from views
// within TABLE_LIKE, or a cleanup task within TASK.
type SubType string

const (
	SubTypeNone              SubType = ""
	SubTypeTable             SubType = "TABLE"
	SubTypeView              SubType = "VIEW"
	SubTypeEntityCleanupTask SubType = "ENTITY_CLEANUP_SCHEDULER"
)

// PrivilegeCode identifies a grantable privilege.
type PrivilegeCode string

const (
	PrivilegeCatalogManageAccess   PrivilegeCode = "CATALOG_MANAGE_ACCESS"
	PrivilegeCatalogManageMetadata PrivilegeCode = "CATALOG_MANAGE_METADATA"
	PrivilegeCatalogRoleUsage      PrivilegeCode = "CATALOG_ROLE_USAGE"
	PrivilegePrincipalRoleUsage    PrivilegeCode = "PRINCIPAL_ROLE_USAGE"
	PrivilegeServiceManageAccess   PrivilegeCode = "SERVICE_MANAGE_ACCESS"
)

// NullID is the sentinel id used for the parentId of top-level entities
// and for the catalogId of entities that are not scoped to a catalog.
const NullID = "0"

// Entity is the common shape shared by every catalog object: catalogs,
// namespaces, tables/views, principals, roles, and tasks.
type Entity struct {
	CatalogID           string            `json:"catalogId"`
	ID                  string            `json:"id"`
	ParentID            string            `json:"parentId"`
	TypeCode            EntityType        `json:"typeCode"`
	SubTypeCode         SubType           `json:"subTypeCode,omitempty"`
	Name                string            `json:"name"`
	EntityVersion       int64             `json:"entityVersion"`
	GrantRecordsVersion int64             `json:"grantRecordsVersion"`
	CreateTimestamp     time.Time         `json:"createTimestamp"`
	LastUpdateTimestamp time.Time         `json:"lastUpdateTimestamp"`
	DropTimestamp       *time.Time        `json:"dropTimestamp,omitempty"`
	Properties          map[string]string `json:"properties,omitempty"`
	InternalProperties  map[string]string `json:"internalProperties,omitempty"`
}

// Property and internal-property keys carrying bit-exact meaning across
// the wire layout described for cleanup tasks, principals, and catalogs.
const (
	PropertyKeyTaskData                 = "data"
	PropertyKeyTaskType                 = "task_type"
	PropertyKeyLastAttemptExecutorID    = "last_attempt_executor_id"
	PropertyKeyLastAttemptStartTime     = "last_attempt_start_time"
	PropertyKeyAttemptCount             = "attempt_count"
	InternalPropertyKeyClientID         = "client_id"
	InternalPropertyKeyRotationRequired = "PRINCIPAL_CREDENTIAL_ROTATION_REQUIRED_STATE"
	InternalPropertyKeyStorageConfig    = "storage-configuration-info"
	InternalPropertyKeyStorageIntegID   = "storage-integration-identifier"
	InternalPropertyKeyUserSecretURN    = "user-secret-urn"
	InternalPropertyKeyUserSecretRef    = "user-secret-reference-payload"
)

// IsUndroppable reports whether e must never be dropped given the
// surrounding realm state the caller already knows (counts of siblings,
// whether e is the designated root principal/role, etc). The manager
// package supplies those facts; this helper only encodes the type-level
// rule from the containment table.
func (e *Entity) IsUndroppable(isDesignatedRootPrincipal, isServiceAdminRole, hasNamespaceOrMultipleCatalogRoles, hasChildren bool) bool {
	switch e.TypeCode {
	case EntityTypeRoot:
		return true
	case EntityTypePrincipal:
		return isDesignatedRootPrincipal
	case EntityTypePrincipalRole:
		return isServiceAdminRole
	case EntityTypeCatalog:
		return hasNamespaceOrMultipleCatalogRoles
	case EntityTypeCatalogRole:
		return false
	case EntityTypeNamespace:
		return hasChildren
	default:
		return false
	}
}

// IsGrantee reports whether entities of this type may receive grants.
func (t EntityType) IsGrantee() bool {
	switch t {
	case EntityTypePrincipal, EntityTypePrincipalRole, EntityTypeCatalogRole:
		return true
	default:
		return false
	}
}

// ParentTypeOf returns the expected parent EntityType for t. NAMESPACE is
// excluded since its parent may be either CATALOG or another NAMESPACE.
func ParentTypeOf(t EntityType) (EntityType, bool) {
	switch t {
	case EntityTypePrincipal, EntityTypePrincipalRole, EntityTypeCatalog, EntityTypeTask:
		return EntityTypeRoot, true
	case EntityTypeCatalogRole:
		return EntityTypeCatalog, true
	case EntityTypeTableLike:
		return EntityTypeNamespace, true
	default:
		return "", false
	}
}

// GrantRecord associates a grantee with a privilege over a securable.
type GrantRecord struct {
	SecurableCatalogID string        `json:"securableCatalogId"`
	SecurableID        string        `json:"securableId"`
	GranteeCatalogID   string        `json:"granteeCatalogId"`
	GranteeID          string        `json:"granteeId"`
	PrivilegeCode      PrivilegeCode `json:"privilegeCode"`
}

// Key returns the tuple identity used to look up or deduplicate a grant.
func (g GrantRecord) Key() [5]string {
	return [5]string{g.SecurableCatalogID, g.SecurableID, g.GranteeCatalogID, g.GranteeID, string(g.PrivilegeCode)}
}

// PrincipalSecret is the credential material for a PRINCIPAL, stored in
// the dedicated secrets slice and referenced from the principal's
// internalProperties.client_id. Only hashes are persisted; the plaintext
// secret is returned once, at generation or rotation time, as
// PrincipalSecretCredentials.
type PrincipalSecret struct {
	ClientID            string `json:"clientId"`
	MainSecretHash      string `json:"mainSecretHash"`
	SecondarySecretHash string `json:"secondarySecretHash"`
	PrincipalID         string `json:"principalId"`
}

// PrincipalSecretCredentials is the plaintext credential pair handed back
// to the caller when secrets are generated or rotated. It is never
// persisted; only the corresponding PrincipalSecret hashes are stored.
type PrincipalSecretCredentials struct {
	ClientID        string
	PrincipalID     string
	MainSecret      string
	SecondarySecret string
}

// PathEntry is one step of a CatalogPath: an ancestor entity the caller
// expects to still exist, optionally pinned to a specific version.
type PathEntry struct {
	CatalogID       string
	ID              string
	TypeCode        EntityType
	ExpectedVersion int64 // 0 means "no version check requested"
}

// CatalogPath is an ordered ancestor chain; index 0 is the catalog itself
// (or the root, for top-level entities), and subsequent entries descend
// toward the entity being addressed.
type CatalogPath []PathEntry

// Status is the outcome discriminator of every Metastore Manager
// operation's result envelope.
type Status string

const (
	StatusSuccess                     Status = "SUCCESS"
	StatusEntityNotFound               Status = "ENTITY_NOT_FOUND"
	StatusEntityAlreadyExists          Status = "ENTITY_ALREADY_EXISTS"
	StatusEntityCannotBeResolved       Status = "ENTITY_CANNOT_BE_RESOLVED"
	StatusCatalogPathCannotBeResolved  Status = "CATALOG_PATH_CANNOT_BE_RESOLVED"
	StatusEntityCannotBeRenamed        Status = "ENTITY_CANNOT_BE_RENAMED"
	StatusEntityUndroppable            Status = "ENTITY_UNDROPPABLE"
	StatusNamespaceNotEmpty            Status = "NAMESPACE_NOT_EMPTY"
	StatusCatalogNotEmpty              Status = "CATALOG_NOT_EMPTY"
	StatusGrantNotFound                Status = "GRANT_NOT_FOUND"
	StatusTargetEntityConcurrentlyMod  Status = "TARGET_ENTITY_CONCURRENTLY_MODIFIED"
	StatusSubscopeCredsError           Status = "SUBSCOPE_CREDS_ERROR"
	StatusUnexpectedErrorSignaled      Status = "UNEXPECTED_ERROR_SIGNALED"
)

// Result is the envelope returned by every public Metastore Manager
// operation in place of a raw error, so expected predicate failures are
// values rather than exceptions.
type Result[T any] struct {
	Status           Status
	Value            T
	ExtraInformation string
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Status: StatusSuccess, Value: value}
}

// Fail builds a non-success result carrying no value.
func Fail[T any](status Status, extra string) Result[T] {
	return Result[T]{Status: status, ExtraInformation: extra}
}

// IsSuccess reports whether the result's status is SUCCESS.
func (r Result[T]) IsSuccess() bool {
	return r.Status == StatusSuccess
}
