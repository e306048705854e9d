package manager

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/icebase/metastore/pkg/resolver"
	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// statusError is a domain failure with a predetermined result status,
// distinct from a plain backend error that statusForError classifies by
// inspecting its type.
type statusError struct {
	status types.Status
	msg    string
}

func (e *statusError) Error() string { return e.msg }

func fail(status types.Status, msg string) error {
	return &statusError{status: status, msg: msg}
}

// statusForError classifies err into the Result status a Metastore
// Manager operation reports it under.
func statusForError(err error) (types.Status, string) {
	if err == nil {
		return types.StatusSuccess, ""
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status, se.msg
	}
	var re *resolver.ResolveError
	if errors.As(err, &re) {
		return re.Status, re.Error()
	}
	if isNotFound(err) {
		return types.StatusEntityNotFound, err.Error()
	}
	if storage.IsRetryOnConcurrency(err) {
		return types.StatusTargetEntityConcurrentlyMod, err.Error()
	}
	if _, ok := storage.IsEntityAlreadyExists(err); ok {
		return types.StatusEntityAlreadyExists, err.Error()
	}
	return types.StatusUnexpectedErrorSignaled, err.Error()
}

// parentTypeOfResolution returns the type of the entity a resolved path
// bottoms out at, or ROOT for an empty (top-level) path.
func parentTypeOfResolution(res resolver.Result) types.EntityType {
	if len(res.Ancestors) == 0 {
		return types.EntityTypeRoot
	}
	return res.Ancestors[len(res.Ancestors)-1].TypeCode
}

// lookupByID fetches an entity by its catalog-scoped id alone. TypeCode is
// not part of a backend's storage key (ids are unique platform-wide), so
// the zero value is passed through; slice implementations accept it only
// for symmetry with the other lookup paths.
func lookupByID(cc *CallContext, backend storage.BasePersistence, catalogID, id string) (*types.Entity, error) {
	return backend.LookupEntity(cc, catalogID, id, "")
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, storage.ErrNotFound)
}

func parseMillis(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

// stampNewEntity fills in the fields a freshly-created entity owns: it
// always starts at version 1 with both timestamps set to now.
func stampNewEntity(cc *CallContext, e *types.Entity) {
	now := cc.Now()
	e.EntityVersion = 1
	e.GrantRecordsVersion = 1
	e.CreateTimestamp = now
	e.LastUpdateTimestamp = now
	if e.DropTimestamp != nil {
		e.DropTimestamp = nil
	}
}

// bumpVersion returns a copy of e with EntityVersion incremented, leaving e
// itself as the CAS witness callers already hold.
func bumpVersion(cc *CallContext, e *types.Entity) *types.Entity {
	next := *e
	next.EntityVersion++
	next.LastUpdateTimestamp = cc.Now()
	return &next
}

// bumpGrantVersion returns a copy of e with GrantRecordsVersion
// incremented. Every grant create/delete bumps this on both the securable
// and the grantee side of the edge.
func bumpGrantVersion(cc *CallContext, e *types.Entity) *types.Entity {
	next := *e
	next.GrantRecordsVersion++
	next.LastUpdateTimestamp = cc.Now()
	return &next
}

func cloneProperties(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// usagePrivilegeFor picks the privilege a usage grant edge is recorded
// under, which depends on the role's type: a CATALOG_ROLE usage-granted to
// a PRINCIPAL_ROLE records CATALOG_ROLE_USAGE; a PRINCIPAL_ROLE
// usage-granted to a PRINCIPAL records PRINCIPAL_ROLE_USAGE.
func usagePrivilegeFor(role *types.Entity) (types.PrivilegeCode, error) {
	switch role.TypeCode {
	case types.EntityTypeCatalogRole:
		return types.PrivilegeCatalogRoleUsage, nil
	case types.EntityTypePrincipalRole:
		return types.PrivilegePrincipalRoleUsage, nil
	default:
		return "", fmt.Errorf("entity type %s is not a role that can be usage-granted", role.TypeCode)
	}
}

// Well-known names bootstrapPolarisService gives the ROOT entity, the root
// PRINCIPAL, and the service-admin PRINCIPAL_ROLE that must never be dropped.
const (
	rootEntityName        = "ROOT"
	rootPrincipalName     = "root"
	serviceAdminRoleName  = "service_admin"
)

func isDesignatedRootPrincipal(e *types.Entity, rootID string) bool {
	return e.TypeCode == types.EntityTypePrincipal && e.Name == rootPrincipalName && e.ParentID == rootID
}

func isServiceAdminRole(e *types.Entity, rootID string) bool {
	return e.TypeCode == types.EntityTypePrincipalRole && e.Name == serviceAdminRoleName && e.ParentID == rootID
}

// catalogAdminRoleName is the name createCatalogCore gives every
// catalog's initial CATALOG_ROLE.
const catalogAdminRoleName = "catalog_admin"

func isCatalogAdminRole(e *types.Entity) bool {
	return e.TypeCode == types.EntityTypeCatalogRole && e.Name == catalogAdminRoleName && e.ParentID == e.CatalogID
}

// writeUserSecret seals plaintext through secrets and stamps the resulting
// reference onto e's internalProperties. A nil secrets manager is a no-op,
// since Deps.Secrets is optional for backends that don't vend bearer
// material through the generic secrets path.
func writeUserSecret(e *types.Entity, secrets security.UserSecretsManager, plaintext string) error {
	if secrets == nil || plaintext == "" {
		return nil
	}
	ref, err := secrets.WriteSecret([]byte(plaintext), e.ID)
	if err != nil {
		return err
	}
	if e.InternalProperties == nil {
		e.InternalProperties = map[string]string{}
	}
	e.InternalProperties[types.InternalPropertyKeyUserSecretURN] = ref.URN
	e.InternalProperties[types.InternalPropertyKeyUserSecretRef] = base64.StdEncoding.EncodeToString(ref.ReferencePayload)
	return nil
}

// deleteUserSecret releases whatever reference writeUserSecret last stamped
// onto e, if any.
func deleteUserSecret(e *types.Entity, secrets security.UserSecretsManager) {
	if secrets == nil || e.InternalProperties == nil {
		return
	}
	urn := e.InternalProperties[types.InternalPropertyKeyUserSecretURN]
	if urn == "" {
		return
	}
	payload, err := base64.StdEncoding.DecodeString(e.InternalProperties[types.InternalPropertyKeyUserSecretRef])
	if err != nil {
		return
	}
	_ = secrets.DeleteSecret(security.UserSecretReference{URN: urn, ReferencePayload: payload})
}

// validateParentType reports whether child's TypeCode is allowed to live
// directly under an entity of parentType, per the containment table.
// NAMESPACE is excluded from types.ParentTypeOf because its parent may be
// either a CATALOG or another NAMESPACE, so it is special-cased here.
func validateParentType(child types.EntityType, parentType types.EntityType) bool {
	if child == types.EntityTypeNamespace {
		return parentType == types.EntityTypeCatalog || parentType == types.EntityTypeNamespace
	}
	want, ok := types.ParentTypeOf(child)
	if !ok {
		return false
	}
	return want == parentType
}

// applyGrant records a privilege edge and bumps both endpoints'
// GrantRecordsVersion, per the reciprocal-update invariant. It is a no-op
// returning the inputs unchanged if the grant already exists.
func applyGrant(cc *CallContext, backend storage.BasePersistence, securable, grantee *types.Entity, privilege types.PrivilegeCode) (*types.Entity, *types.Entity, error) {
	record := types.GrantRecord{
		SecurableCatalogID: securable.CatalogID, SecurableID: securable.ID,
		GranteeCatalogID: grantee.CatalogID, GranteeID: grantee.ID,
		PrivilegeCode: privilege,
	}
	_, err := backend.LookupGrantRecord(cc, record.SecurableCatalogID, record.SecurableID, record.GranteeCatalogID, record.GranteeID, record.PrivilegeCode)
	if err == nil {
		return securable, grantee, nil
	}
	if !isNotFound(err) {
		return nil, nil, err
	}
	if err := backend.WriteToGrantRecords(cc, record); err != nil {
		return nil, nil, err
	}
	nextSecurable := bumpGrantVersion(cc, securable)
	if err := backend.WriteEntity(cc, nextSecurable, false, securable); err != nil {
		return nil, nil, err
	}
	nextGrantee := bumpGrantVersion(cc, grantee)
	if err := backend.WriteEntity(cc, nextGrantee, false, grantee); err != nil {
		return nil, nil, err
	}
	return nextSecurable, nextGrantee, nil
}

// revokeGrant is applyGrant's inverse: it deletes the edge and bumps both
// endpoints, or no-ops if the edge is already gone.
func revokeGrant(cc *CallContext, backend storage.BasePersistence, securable, grantee *types.Entity, privilege types.PrivilegeCode) (*types.Entity, *types.Entity, error) {
	record := types.GrantRecord{
		SecurableCatalogID: securable.CatalogID, SecurableID: securable.ID,
		GranteeCatalogID: grantee.CatalogID, GranteeID: grantee.ID,
		PrivilegeCode: privilege,
	}
	_, err := backend.LookupGrantRecord(cc, record.SecurableCatalogID, record.SecurableID, record.GranteeCatalogID, record.GranteeID, record.PrivilegeCode)
	if isNotFound(err) {
		return securable, grantee, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := backend.DeleteFromGrantRecords(cc, record); err != nil {
		return nil, nil, err
	}
	nextSecurable := bumpGrantVersion(cc, securable)
	if err := backend.WriteEntity(cc, nextSecurable, false, securable); err != nil {
		return nil, nil, err
	}
	nextGrantee := bumpGrantVersion(cc, grantee)
	if err := backend.WriteEntity(cc, nextGrantee, false, grantee); err != nil {
		return nil, nil, err
	}
	return nextSecurable, nextGrantee, nil
}
