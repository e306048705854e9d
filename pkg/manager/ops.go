package manager

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/icebase/metastore/pkg/resolver"
	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

// This file holds the operation bodies shared by TransactionalManager and
// AtomicManager: both strategies run the identical sequence of slice
// calls against a storage.BasePersistence handle, differing only in how
// the caller wraps that sequence (one backend-managed transaction versus
// a per-step CAS retry loop).

func resolvePath(cc *CallContext, backend storage.BasePersistence, path types.CatalogPath) (resolver.Result, error) {
	root, err := findRoot(cc, backend)
	if err != nil {
		return resolver.Result{}, err
	}
	return resolver.New(backend).Resolve(cc, path, root.ID)
}

func createCatalogCore(cc *CallContext, backend storage.BasePersistence, catalog *types.Entity, principalRoleIDs []string, storageConfig string) (*types.Entity, error) {
	root, err := findRoot(cc, backend)
	if err != nil {
		return nil, err
	}
	if existing, err := backend.LookupEntityByName(cc, types.NullID, root.ID, types.EntityTypeCatalog, catalog.Name); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	id, err := backend.GenerateNewID(cc)
	if err != nil {
		return nil, err
	}
	catalog.ID = id
	catalog.CatalogID = id
	catalog.ParentID = root.ID
	catalog.TypeCode = types.EntityTypeCatalog
	if storageConfig != "" {
		catalog.InternalProperties = cloneProperties(catalog.InternalProperties)
		if catalog.InternalProperties == nil {
			catalog.InternalProperties = map[string]string{}
		}
		catalog.InternalProperties[types.InternalPropertyKeyStorageConfig] = storageConfig
	}
	stampNewEntity(cc, catalog)
	if err := backend.WriteEntity(cc, catalog, true, nil); err != nil {
		return nil, err
	}

	adminRole, err := createIfAbsentByName(cc, backend, catalog.ID, catalog.ID, types.EntityTypeCatalogRole, catalogAdminRoleName, func(*types.Entity) {})
	if err != nil {
		return nil, err
	}

	catalog, adminRole, err = applyGrant(cc, backend, catalog, adminRole, types.PrivilegeCatalogManageAccess)
	if err != nil {
		return nil, err
	}
	catalog, adminRole, err = applyGrant(cc, backend, catalog, adminRole, types.PrivilegeCatalogManageMetadata)
	if err != nil {
		return nil, err
	}

	for _, principalRoleID := range principalRoleIDs {
		principalRole, err := lookupByID(cc, backend, types.NullID, principalRoleID)
		if err != nil {
			return nil, err
		}
		adminRole, principalRole, err = applyGrant(cc, backend, adminRole, principalRole, types.PrivilegeCatalogRoleUsage)
		if err != nil {
			return nil, err
		}
	}

	if storageConfig != "" {
		if err := backend.CreateStorageIntegration(cc, catalog.CatalogID, catalog.ID, storageConfig); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func createPrincipalCore(cc *CallContext, backend storage.BasePersistence, secrets security.UserSecretsManager, principal *types.Entity) (*types.PrincipalSecretCredentials, error) {
	root, err := findRoot(cc, backend)
	if err != nil {
		return nil, err
	}
	if _, err := backend.LookupEntityByName(cc, types.NullID, root.ID, types.EntityTypePrincipal, principal.Name); err == nil {
		return nil, fail(types.StatusEntityAlreadyExists, "principal "+principal.Name+" already exists")
	} else if !isNotFound(err) {
		return nil, err
	}

	id, err := backend.GenerateNewID(cc)
	if err != nil {
		return nil, err
	}
	principal.ID = id
	principal.CatalogID = types.NullID
	principal.ParentID = root.ID
	principal.TypeCode = types.EntityTypePrincipal

	creds, err := backend.GenerateNewPrincipalSecrets(cc, principal.Name, principal.ID)
	if err != nil {
		return nil, err
	}
	principal.InternalProperties = cloneProperties(principal.InternalProperties)
	if principal.InternalProperties == nil {
		principal.InternalProperties = map[string]string{}
	}
	principal.InternalProperties[types.InternalPropertyKeyClientID] = creds.ClientID
	if err := writeUserSecret(principal, secrets, creds.MainSecret); err != nil {
		return nil, err
	}
	stampNewEntity(cc, principal)
	if err := backend.WriteEntity(cc, principal, true, nil); err != nil {
		return nil, err
	}
	return creds, nil
}

// rotatePrincipalSecretsCore rotates a principal's OAuth credential pair at
// the storage layer, refreshes the sealed copy of the new main secret that
// createPrincipalCore stamped onto the principal entity, and maintains the
// PRINCIPAL_CREDENTIAL_ROTATION_REQUIRED_STATE marker: reset=true sets it
// (the caller, typically an admin, is forcing the principal to rotate again
// before its credentials are trusted), and the first subsequent reset=false
// rotation clears it, once the new secret is safely written. The entity
// refresh is best-effort: backend.RotatePrincipalSecrets has already
// committed by the time it runs, so a lost CAS race here just leaves the
// sealed reference and the marker one rotation stale rather than failing a
// rotation that already succeeded.
func rotatePrincipalSecretsCore(cc *CallContext, backend storage.BasePersistence, secrets security.UserSecretsManager, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error) {
	creds, err := backend.RotatePrincipalSecrets(cc, clientID, principalID, reset, oldSecretHash)
	if err != nil {
		return nil, err
	}
	principal, err := lookupByID(cc, backend, types.NullID, principalID)
	if err != nil {
		return creds, nil
	}
	next := *principal
	next.InternalProperties = cloneProperties(principal.InternalProperties)
	if secrets != nil {
		deleteUserSecret(principal, secrets)
		if err := writeUserSecret(&next, secrets, creds.MainSecret); err != nil {
			return creds, nil
		}
	}
	if reset {
		if next.InternalProperties == nil {
			next.InternalProperties = map[string]string{}
		}
		next.InternalProperties[types.InternalPropertyKeyRotationRequired] = "true"
	} else {
		delete(next.InternalProperties, types.InternalPropertyKeyRotationRequired)
	}
	next.LastUpdateTimestamp = cc.Now()
	_ = backend.WriteEntity(cc, &next, false, principal)
	return creds, nil
}

func createEntityCore(cc *CallContext, backend storage.BasePersistence, path types.CatalogPath, entity *types.Entity) (*types.Entity, error) {
	res, err := resolvePath(cc, backend, path)
	if err != nil {
		return nil, err
	}
	if !validateParentType(entity.TypeCode, parentTypeOfResolution(res)) {
		return nil, fail(types.StatusEntityCannotBeResolved, "entity type "+string(entity.TypeCode)+" cannot live under a "+string(parentTypeOfResolution(res)))
	}
	if existing, err := backend.LookupEntityByName(cc, res.CatalogID, res.ParentID, entity.TypeCode, entity.Name); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	id, err := backend.GenerateNewID(cc)
	if err != nil {
		return nil, err
	}
	entity.ID = id
	entity.CatalogID = res.CatalogID
	entity.ParentID = res.ParentID
	stampNewEntity(cc, entity)
	if err := backend.WriteEntity(cc, entity, true, nil); err != nil {
		return nil, err
	}
	return entity, nil
}

func updateEntityPropertiesCore(cc *CallContext, backend storage.BasePersistence, path types.CatalogPath, entity *types.Entity) (*types.Entity, error) {
	stored, err := backend.LookupEntity(cc, entity.CatalogID, entity.ID, entity.TypeCode)
	if err != nil {
		return nil, err
	}
	if stored.EntityVersion != entity.EntityVersion || stored.GrantRecordsVersion != entity.GrantRecordsVersion {
		return nil, fail(types.StatusTargetEntityConcurrentlyMod, "entity was modified since the caller last observed it")
	}
	if len(path) > 0 {
		if _, err := resolvePath(cc, backend, path); err != nil {
			return nil, err
		}
	}
	next := bumpVersion(cc, stored)
	next.Properties = cloneProperties(entity.Properties)
	next.InternalProperties = cloneProperties(entity.InternalProperties)
	if err := backend.WriteEntity(cc, next, false, stored); err != nil {
		return nil, err
	}
	return next, nil
}

func renameEntityCore(cc *CallContext, backend storage.BasePersistence, entityToRename *types.Entity, newPath types.CatalogPath, renamedEntity *types.Entity) (*types.Entity, error) {
	stored, err := backend.LookupEntity(cc, entityToRename.CatalogID, entityToRename.ID, entityToRename.TypeCode)
	if err != nil {
		return nil, err
	}
	if stored.EntityVersion != entityToRename.EntityVersion {
		return nil, fail(types.StatusTargetEntityConcurrentlyMod, "entity was modified since the caller last observed it")
	}
	newRes, err := resolvePath(cc, backend, newPath)
	if err != nil {
		return nil, err
	}
	if !validateParentType(stored.TypeCode, parentTypeOfResolution(newRes)) {
		return nil, fail(types.StatusEntityCannotBeRenamed, "entity type "+string(stored.TypeCode)+" cannot live under a "+string(parentTypeOfResolution(newRes)))
	}
	if conflict, err := backend.LookupEntityByName(cc, newRes.CatalogID, newRes.ParentID, stored.TypeCode, renamedEntity.Name); err == nil && conflict.ID != stored.ID {
		return nil, fail(types.StatusEntityAlreadyExists, "an entity named "+renamedEntity.Name+" already exists at the destination")
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}

	next := bumpVersion(cc, stored)
	next.Name = renamedEntity.Name
	next.ParentID = newRes.ParentID
	next.CatalogID = newRes.CatalogID
	if err := backend.WriteEntity(cc, next, true, stored); err != nil {
		return nil, err
	}
	return next, nil
}

func dropEntityCore(cc *CallContext, backend storage.BasePersistence, secrets security.UserSecretsManager, entityToDrop *types.Entity, cleanupProperties map[string]string, cleanup bool) (string, error) {
	stored, err := backend.LookupEntity(cc, entityToDrop.CatalogID, entityToDrop.ID, entityToDrop.TypeCode)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	root, err := findRoot(cc, backend)
	if err != nil {
		return "", err
	}

	// cascadeRole is set when dropping stored also drops its last
	// remaining CATALOG_ROLE, per the containment table: a catalog with
	// zero namespaces and exactly one role succeeds and takes the role
	// with it, rather than leaving an orphaned, undroppable-by-count role
	// behind.
	var cascadeRole *types.Entity
	hasNSOrMultiRoles := false
	hasChildren := false
	switch stored.TypeCode {
	case types.EntityTypeCatalog:
		namespaces, err := backend.ListEntities(cc, stored.ID, stored.ID, types.EntityTypeNamespace)
		if err != nil {
			return "", err
		}
		catalogRoles, err := backend.ListEntities(cc, stored.ID, stored.ID, types.EntityTypeCatalogRole)
		if err != nil {
			return "", err
		}
		hasNSOrMultiRoles = len(namespaces) > 0 || len(catalogRoles) > 1
		if len(namespaces) == 0 && len(catalogRoles) == 1 {
			cascadeRole = catalogRoles[0]
		}
	case types.EntityTypeNamespace:
		hasChildren, err = backend.HasChildren(cc, "", stored.CatalogID, stored.ID)
		if err != nil {
			return "", err
		}
	case types.EntityTypeCatalogRole:
		if isCatalogAdminRole(stored) {
			siblings, err := backend.ListEntities(cc, stored.CatalogID, stored.CatalogID, types.EntityTypeCatalogRole)
			if err != nil {
				return "", err
			}
			if len(siblings) <= 1 {
				return "", fail(types.StatusEntityUndroppable, "catalog_admin "+stored.Name+" is the only remaining role for its catalog")
			}
		}
	}
	if stored.IsUndroppable(isDesignatedRootPrincipal(stored, root.ID), isServiceAdminRole(stored, root.ID), hasNSOrMultiRoles, hasChildren) {
		switch stored.TypeCode {
		case types.EntityTypeCatalog:
			return "", fail(types.StatusCatalogNotEmpty, "catalog "+stored.Name+" still has namespaces or more than one catalog role")
		case types.EntityTypeNamespace:
			return "", fail(types.StatusNamespaceNotEmpty, "namespace "+stored.Name+" still has children")
		default:
			return "", fail(types.StatusEntityUndroppable, string(stored.TypeCode)+" "+stored.Name+" cannot be dropped")
		}
	}

	if err := dropSingleEntity(cc, backend, secrets, stored); err != nil {
		return "", err
	}
	if cascadeRole != nil {
		if err := dropSingleEntity(cc, backend, secrets, cascadeRole); err != nil {
			return "", err
		}
	}

	if !cleanup {
		return "", nil
	}
	taskID, err := backend.GenerateNewID(cc)
	if err != nil {
		return "", err
	}
	now := cc.Now()
	task := &types.Entity{
		CatalogID:   types.NullID,
		ID:          taskID,
		ParentID:    root.ID,
		TypeCode:    types.EntityTypeTask,
		SubTypeCode: types.SubTypeEntityCleanupTask,
		Name:        "cleanup-" + stored.ID + "-" + strconv.FormatInt(now.UnixNano(), 10),
		Properties:  mergeCleanupProperties(cleanupProperties, stored),
	}
	stampNewEntity(cc, task)
	if err := backend.WriteEntity(cc, task, true, nil); err != nil {
		return "", err
	}
	return task.ID, nil
}

// dropSingleEntity removes stored's grant records, its principal secrets
// if any, and finally the entity row itself. Shared between a direct drop
// and the cascade drop of a catalog's sole remaining role.
func dropSingleEntity(cc *CallContext, backend storage.BasePersistence, secrets security.UserSecretsManager, stored *types.Entity) error {
	if err := backend.DeleteAllEntityGrantRecords(cc, stored, true, true); err != nil {
		return err
	}
	if stored.TypeCode == types.EntityTypePrincipal {
		clientID := stored.InternalProperties[types.InternalPropertyKeyClientID]
		if clientID != "" {
			if err := backend.DeletePrincipalSecrets(cc, clientID, stored.ID); err != nil {
				return err
			}
		}
		deleteUserSecret(stored, secrets)
	}
	return backend.DeleteEntity(cc, stored)
}

func mergeCleanupProperties(cleanupProperties map[string]string, dropped *types.Entity) map[string]string {
	props := cloneProperties(cleanupProperties)
	if props == nil {
		props = map[string]string{}
	}
	props[types.PropertyKeyTaskType] = string(types.SubTypeEntityCleanupTask)
	props[types.PropertyKeyAttemptCount] = "0"
	props["dropped_entity_id"] = dropped.ID
	props["dropped_entity_type"] = string(dropped.TypeCode)
	if data, err := json.Marshal(dropped); err == nil {
		props[types.PropertyKeyTaskData] = string(data)
	}
	return props
}

func grantPrivilegeCore(cc *CallContext, backend storage.BasePersistence, securable, role *types.Entity, privilege types.PrivilegeCode) error {
	s, err := lookupByID(cc, backend, securable.CatalogID, securable.ID)
	if err != nil {
		return err
	}
	r, err := lookupByID(cc, backend, role.CatalogID, role.ID)
	if err != nil {
		return err
	}
	_, _, err = applyGrant(cc, backend, s, r, privilege)
	return err
}

func revokePrivilegeCore(cc *CallContext, backend storage.BasePersistence, securable, role *types.Entity, privilege types.PrivilegeCode) error {
	s, err := lookupByID(cc, backend, securable.CatalogID, securable.ID)
	if err != nil {
		return err
	}
	r, err := lookupByID(cc, backend, role.CatalogID, role.ID)
	if err != nil {
		return err
	}
	if _, err := backend.LookupGrantRecord(cc, s.CatalogID, s.ID, r.CatalogID, r.ID, privilege); isNotFound(err) {
		return fail(types.StatusGrantNotFound, "no such grant")
	} else if err != nil {
		return err
	}
	_, _, err = revokeGrant(cc, backend, s, r, privilege)
	return err
}

func grantUsageCore(cc *CallContext, backend storage.BasePersistence, role, grantee *types.Entity) error {
	r, err := lookupByID(cc, backend, role.CatalogID, role.ID)
	if err != nil {
		return err
	}
	g, err := lookupByID(cc, backend, grantee.CatalogID, grantee.ID)
	if err != nil {
		return err
	}
	priv, err := usagePrivilegeFor(r)
	if err != nil {
		return fail(types.StatusEntityCannotBeResolved, err.Error())
	}
	_, _, err = applyGrant(cc, backend, r, g, priv)
	return err
}

func revokeUsageCore(cc *CallContext, backend storage.BasePersistence, role, grantee *types.Entity) error {
	r, err := lookupByID(cc, backend, role.CatalogID, role.ID)
	if err != nil {
		return err
	}
	g, err := lookupByID(cc, backend, grantee.CatalogID, grantee.ID)
	if err != nil {
		return err
	}
	priv, err := usagePrivilegeFor(r)
	if err != nil {
		return fail(types.StatusEntityCannotBeResolved, err.Error())
	}
	if _, err := backend.LookupGrantRecord(cc, r.CatalogID, r.ID, g.CatalogID, g.ID, priv); isNotFound(err) {
		return fail(types.StatusGrantNotFound, "no such grant")
	} else if err != nil {
		return err
	}
	_, _, err = revokeGrant(cc, backend, r, g, priv)
	return err
}

func loadGrantsView(cc *CallContext, backend storage.BasePersistence, catalogID, id string, onSecurable bool) (GrantsView, error) {
	version, err := backend.LookupEntityGrantRecordsVersion(cc, catalogID, id)
	if err != nil {
		return GrantsView{}, err
	}
	var records []types.GrantRecord
	if onSecurable {
		records, err = backend.LoadAllGrantRecordsOnSecurable(cc, catalogID, id)
	} else {
		records, err = backend.LoadAllGrantRecordsOnGrantee(cc, catalogID, id)
	}
	if err != nil {
		return GrantsView{}, err
	}
	view := GrantsView{GrantRecordsVersion: version, Grants: records}
	for _, r := range records {
		var cp *types.Entity
		var err error
		if onSecurable {
			cp, err = lookupByID(cc, backend, r.GranteeCatalogID, r.GranteeID)
		} else {
			cp, err = lookupByID(cc, backend, r.SecurableCatalogID, r.SecurableID)
		}
		if err != nil {
			continue
		}
		view.Counterparties = append(view.Counterparties, cp)
	}
	return view, nil
}

func buildResolvedEntity(cc *CallContext, backend storage.BasePersistence, entity *types.Entity) (*ResolvedEntity, error) {
	onSecurable, err := loadGrantsView(cc, backend, entity.CatalogID, entity.ID, true)
	if err != nil {
		return nil, err
	}
	re := &ResolvedEntity{Entity: entity, GrantsOnSecurable: onSecurable}
	if entity.TypeCode.IsGrantee() {
		toGrantee, err := loadGrantsView(cc, backend, entity.CatalogID, entity.ID, false)
		if err != nil {
			return nil, err
		}
		re.GrantsToGrantee = &toGrantee
	}
	return re, nil
}

func loadResolvedEntityByNameCore(cc *CallContext, backend storage.BasePersistence, catalogID, parentID string, typeCode types.EntityType, name string) (*ResolvedEntity, error) {
	entity, err := backend.LookupEntityByName(cc, catalogID, parentID, typeCode, name)
	if isNotFound(err) && typeCode == types.EntityTypeRoot && catalogID == types.NullID && parentID == types.NullID && name == rootEntityName {
		entity, err = backfillRoot(cc, backend)
	}
	if err != nil {
		return nil, err
	}
	return buildResolvedEntity(cc, backend, entity)
}

func refreshResolvedEntityCore(cc *CallContext, backend storage.BasePersistence, catalogID, id string, typeCode types.EntityType, entityVersion, grantRecordsVersion int64) (*EntityDelta, error) {
	entity, err := backend.LookupEntity(cc, catalogID, id, typeCode)
	if err != nil {
		return nil, err
	}
	if entity.EntityVersion == entityVersion && entity.GrantRecordsVersion == grantRecordsVersion {
		return &EntityDelta{Unchanged: true}, nil
	}
	delta := &EntityDelta{}
	if entity.EntityVersion != entityVersion {
		delta.Entity = entity
	}
	if entity.GrantRecordsVersion != grantRecordsVersion {
		view, err := loadGrantsView(cc, backend, catalogID, id, true)
		if err != nil {
			return nil, err
		}
		delta.GrantsView = &view
	}
	return delta, nil
}

// leaseTasks leases up to limit TASK entities whose executor is unset or
// whose last attempt has exceeded the configured timeout, bumping their
// attempt bookkeeping with a CAS write. CAS losses (another executor won
// the race) are skipped silently unless nothing at all was leased, in
// which case the caller is told to retry.
func leaseTasks(cc *CallContext, backend storage.BasePersistence, executorID string, limit int) ([]*types.Entity, error) {
	root, err := findRoot(cc, backend)
	if err != nil {
		return nil, err
	}
	all, err := backend.ListEntities(cc, types.NullID, root.ID, types.EntityTypeTask)
	if err != nil {
		return nil, err
	}
	timeout := TaskTimeout(cc)
	now := cc.Now()
	leased := make([]*types.Entity, 0, limit)
	casFailures := 0
	for _, t := range all {
		if len(leased) >= limit {
			break
		}
		if !taskEligible(t, now, timeout) {
			continue
		}
		next := *t
		next.Properties = cloneProperties(t.Properties)
		if next.Properties == nil {
			next.Properties = map[string]string{}
		}
		attempt, _ := strconv.Atoi(t.Properties[types.PropertyKeyAttemptCount])
		next.Properties[types.PropertyKeyLastAttemptExecutorID] = executorID
		next.Properties[types.PropertyKeyLastAttemptStartTime] = strconv.FormatInt(now.UnixMilli(), 10)
		next.Properties[types.PropertyKeyAttemptCount] = strconv.Itoa(attempt + 1)
		next.EntityVersion++
		next.LastUpdateTimestamp = now
		if err := backend.WriteEntity(cc, &next, false, t); err != nil {
			if storage.IsRetryOnConcurrency(err) {
				casFailures++
				continue
			}
			return nil, err
		}
		leased = append(leased, &next)
	}
	if len(leased) == 0 && casFailures > 0 {
		return nil, fail(types.StatusTargetEntityConcurrentlyMod, "every eligible task lost its lease race, retry")
	}
	return leased, nil
}

func taskEligible(t *types.Entity, now time.Time, timeout time.Duration) bool {
	executor := t.Properties[types.PropertyKeyLastAttemptExecutorID]
	if executor == "" {
		return true
	}
	lastStart := t.Properties[types.PropertyKeyLastAttemptStartTime]
	if lastStart == "" {
		return true
	}
	ms, err := strconv.ParseInt(lastStart, 10, 64)
	if err != nil {
		return true
	}
	return now.Sub(time.UnixMilli(ms)) > timeout
}

func catalogStorageConfigCore(cc *CallContext, backend storage.BasePersistence, catalogID string) (string, error) {
	catalogEntity, err := lookupByID(cc, backend, catalogID, catalogID)
	if err != nil {
		return "", err
	}
	config, found, err := backend.LoadStorageIntegration(cc, catalogEntity)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fail(types.StatusSubscopeCredsError, "no storage integration configured for catalog "+catalogID)
	}
	return config, nil
}
