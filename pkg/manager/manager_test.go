package manager

import (
	"testing"
	"time"

	"github.com/icebase/metastore/pkg/security"
	"github.com/icebase/metastore/pkg/storage"
	"github.com/icebase/metastore/pkg/types"
)

func testCallContext() *CallContext {
	return &CallContext{}
}

func testSecrets(t *testing.T) security.UserSecretsManager {
	t.Helper()
	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	for i := range key1 {
		key1[i] = byte(i)
		key2[i] = byte(i + 1)
	}
	mgr, err := security.NewEncryptedSecretsManager(key1, key2)
	if err != nil {
		t.Fatalf("NewEncryptedSecretsManager() error = %v", err)
	}
	return mgr
}

func newAtomicManager(t *testing.T) (*AtomicManager, *CallContext) {
	t.Helper()
	backend := storage.NewMemoryAtomicPersistence()
	mgr := NewAtomicManager(backend, Deps{
		Secrets:            testSecrets(t),
		StorageIntegration: security.NewStaticStorageIntegration(0),
	})
	return mgr, testCallContext()
}

func newTransactionalManager(t *testing.T) (*TransactionalManager, *CallContext) {
	t.Helper()
	backend, err := storage.NewBoltPersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltPersistence() error = %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	mgr := NewTransactionalManager(backend, Deps{
		Secrets:            testSecrets(t),
		StorageIntegration: security.NewStaticStorageIntegration(0),
	})
	return mgr, testCallContext()
}

func catalogPath(catalogID string) types.CatalogPath {
	return types.CatalogPath{{CatalogID: catalogID, ID: catalogID, TypeCode: types.EntityTypeCatalog}}
}

func namespacePath(catalogID string, ns *types.Entity) types.CatalogPath {
	return types.CatalogPath{
		{CatalogID: catalogID, ID: catalogID, TypeCode: types.EntityTypeCatalog},
		{CatalogID: catalogID, ID: ns.ID, TypeCode: types.EntityTypeNamespace},
	}
}

func requireSuccess[T any](t *testing.T, r types.Result[T], op string) T {
	t.Helper()
	if !r.IsSuccess() {
		t.Fatalf("%s: status = %s, extra = %s", op, r.Status, r.ExtraInformation)
	}
	return r.Value
}

func TestBootstrapPolarisService_IdempotentAcrossStrategies(t *testing.T) {
	for _, strategy := range []string{"atomic", "transactional"} {
		t.Run(strategy, func(t *testing.T) {
			var mgr MetastoreManager
			var cc *CallContext
			if strategy == "atomic" {
				mgr, cc = newAtomicManager(t)
			} else {
				mgr, cc = newTransactionalManager(t)
			}

			first := mgr.BootstrapPolarisService(cc)
			if !first.IsSuccess() || !first.Value {
				t.Fatalf("first bootstrap = %+v, want success with created=true", first)
			}
			second := mgr.BootstrapPolarisService(cc)
			if !second.IsSuccess() {
				t.Fatalf("second bootstrap status = %s", second.Status)
			}

			root := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, types.NullID, types.EntityTypeRoot, rootEntityName), "LoadResolvedEntityByName(ROOT)")
			principal := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, root.Entity.ID, types.EntityTypePrincipal, rootPrincipalName), "LoadResolvedEntityByName(root principal)")
			if len(principal.GrantsToGrantee.Grants) != 1 {
				t.Errorf("root principal grants = %d, want 1 (service_admin usage)", len(principal.GrantsToGrantee.Grants))
			}
		})
	}
}

func TestCreateCatalog_GrantsAdminRoleManageAccessAndMetadata(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")

	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")

	resolved := requireSuccess(t, mgr.LoadResolvedEntityByID(cc, catalog.CatalogID, catalog.ID, types.EntityTypeCatalog), "LoadResolvedEntityByID(catalog)")
	if len(resolved.GrantsOnSecurable.Grants) != 2 {
		t.Fatalf("catalog grants = %d, want 2 (manage_access, manage_metadata)", len(resolved.GrantsOnSecurable.Grants))
	}

	adminRole := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, catalog.ID, catalog.ID, types.EntityTypeCatalogRole, catalogAdminRoleName), "LoadResolvedEntityByName(catalog_admin)")
	if len(adminRole.GrantsToGrantee.Grants) != 2 {
		t.Errorf("catalog_admin grants-to-grantee = %d, want 2", len(adminRole.GrantsToGrantee.Grants))
	}

	again := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog (idempotent)")
	if again.ID != catalog.ID {
		t.Errorf("second CreateCatalog with same name returned a different entity: %s != %s", again.ID, catalog.ID)
	}
}

func TestDropEntity_CatalogNotEmptyWithNamespace(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")
	requireSuccess(t, mgr.CreateEntityIfNotExists(cc, catalogPath(catalog.ID), &types.Entity{Name: "ns1", TypeCode: types.EntityTypeNamespace}), "CreateEntityIfNotExists(ns1)")

	result := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: catalog.ID, ID: catalog.ID, TypeCode: types.EntityTypeCatalog}, nil, false)
	if result.IsSuccess() {
		t.Fatal("expected drop to fail, got success")
	}
	if result.Status != types.StatusCatalogNotEmpty {
		t.Errorf("status = %s, want %s", result.Status, types.StatusCatalogNotEmpty)
	}
}

func TestDropEntity_NamespaceNotEmptyWithTable(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")
	ns := requireSuccess(t, mgr.CreateEntityIfNotExists(cc, catalogPath(catalog.ID), &types.Entity{Name: "ns1", TypeCode: types.EntityTypeNamespace}), "CreateEntityIfNotExists(ns1)")
	requireSuccess(t, mgr.CreateEntityIfNotExists(cc, namespacePath(catalog.ID, ns), &types.Entity{Name: "t1", TypeCode: types.EntityTypeTableLike, SubTypeCode: types.SubTypeTable}), "CreateEntityIfNotExists(t1)")

	result := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: catalog.ID, ID: ns.ID, TypeCode: types.EntityTypeNamespace}, nil, false)
	if result.IsSuccess() {
		t.Fatal("expected drop to fail, got success")
	}
	if result.Status != types.StatusNamespaceNotEmpty {
		t.Errorf("status = %s, want %s", result.Status, types.StatusNamespaceNotEmpty)
	}
}

// TestDropEntity_CatalogCascadesSoleCatalogRole covers the containment-table
// case where a catalog with zero namespaces and exactly one catalog role
// succeeds and takes that role with it, rather than leaving it behind as an
// orphan a later direct drop would reject.
func TestDropEntity_CatalogCascadesSoleCatalogRole(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")

	result := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: catalog.ID, ID: catalog.ID, TypeCode: types.EntityTypeCatalog}, nil, false)
	if !result.IsSuccess() {
		t.Fatalf("drop catalog with sole role = %s, want success", result.Status)
	}

	roleResult := mgr.LoadResolvedEntityByName(cc, catalog.ID, catalog.ID, types.EntityTypeCatalogRole, catalogAdminRoleName)
	if roleResult.IsSuccess() {
		t.Error("catalog_admin role should have been cascade-dropped with its catalog")
	}
}

// TestDropEntity_LastCatalogRoleDirectlyIsUndroppable covers the identity
// case: a catalog_admin role can never be dropped directly while it is the
// last role left on its catalog, even though dropping the catalog itself
// would take it along.
func TestDropEntity_LastCatalogRoleDirectlyIsUndroppable(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")
	role := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, catalog.ID, catalog.ID, types.EntityTypeCatalogRole, catalogAdminRoleName), "LoadResolvedEntityByName(catalog_admin)")

	result := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: catalog.ID, ID: role.Entity.ID, TypeCode: types.EntityTypeCatalogRole}, nil, false)
	if result.IsSuccess() {
		t.Fatal("expected direct drop of the last catalog role to fail")
	}
	if result.Status != types.StatusEntityUndroppable {
		t.Errorf("status = %s, want %s", result.Status, types.StatusEntityUndroppable)
	}
}

func TestDropEntity_RootAndDesignatedPrincipalAreUndroppable(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	root := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, types.NullID, types.EntityTypeRoot, rootEntityName), "LoadResolvedEntityByName(ROOT)")
	principal := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, root.Entity.ID, types.EntityTypePrincipal, rootPrincipalName), "LoadResolvedEntityByName(root principal)")

	if r := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: types.NullID, ID: root.Entity.ID, TypeCode: types.EntityTypeRoot}, nil, false); r.IsSuccess() || r.Status != types.StatusEntityUndroppable {
		t.Errorf("drop ROOT = (%v, %s), want (false, %s)", r.IsSuccess(), r.Status, types.StatusEntityUndroppable)
	}
	if r := mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: types.NullID, ID: principal.Entity.ID, TypeCode: types.EntityTypePrincipal}, nil, false); r.IsSuccess() || r.Status != types.StatusEntityUndroppable {
		t.Errorf("drop root principal = (%v, %s), want (false, %s)", r.IsSuccess(), r.Status, types.StatusEntityUndroppable)
	}
}

func TestDropEntity_PrincipalCleanupTaskAndSecretReference(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	creds := requireSuccess(t, mgr.CreatePrincipal(cc, &types.Entity{Name: "svc1"}), "CreatePrincipal")

	loaded := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, mustRoot(t, mgr, cc).ID, types.EntityTypePrincipal, "svc1"), "LoadResolvedEntityByName(svc1)")
	if loaded.Entity.InternalProperties[types.InternalPropertyKeyUserSecretURN] == "" {
		t.Fatal("principal should carry a sealed user-secret reference after creation")
	}

	taskID := requireSuccess(t, mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: types.NullID, ID: loaded.Entity.ID, TypeCode: types.EntityTypePrincipal}, map[string]string{"reason": "test"}, true), "DropEntityIfExists(principal, cleanup=true)")
	if taskID == "" {
		t.Fatal("expected a cleanup task id, got empty string")
	}

	secretsResult := mgr.LoadPrincipalSecrets(cc, creds.ClientID)
	if secretsResult.IsSuccess() {
		t.Error("principal secrets should be gone after drop")
	}
}

func mustRoot(t *testing.T, mgr MetastoreManager, cc *CallContext) *types.Entity {
	t.Helper()
	r := mgr.LoadResolvedEntityByName(cc, types.NullID, types.NullID, types.EntityTypeRoot, rootEntityName)
	if !r.IsSuccess() {
		t.Fatalf("LoadResolvedEntityByName(ROOT) status = %s", r.Status)
	}
	return r.Value.Entity
}

func TestGrantAndRevoke_ReciprocalVersionBump(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")
	ns := requireSuccess(t, mgr.CreateEntityIfNotExists(cc, catalogPath(catalog.ID), &types.Entity{Name: "ns1", TypeCode: types.EntityTypeNamespace}), "CreateEntityIfNotExists(ns1)")
	role := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, catalog.ID, catalog.ID, types.EntityTypeCatalogRole, catalogAdminRoleName), "LoadResolvedEntityByName(catalog_admin)")

	before := requireSuccess(t, mgr.LoadResolvedEntityByID(cc, catalog.ID, ns.ID, types.EntityTypeNamespace), "LoadResolvedEntityByID(ns1) before grant")

	grantResult := mgr.GrantPrivilegeOnSecurableToRole(cc, &types.Entity{CatalogID: catalog.ID, ID: ns.ID}, &types.Entity{CatalogID: catalog.ID, ID: role.Entity.ID}, types.PrivilegeCatalogManageMetadata)
	if !grantResult.IsSuccess() {
		t.Fatalf("GrantPrivilegeOnSecurableToRole status = %s", grantResult.Status)
	}

	after := requireSuccess(t, mgr.LoadResolvedEntityByID(cc, catalog.ID, ns.ID, types.EntityTypeNamespace), "LoadResolvedEntityByID(ns1) after grant")
	if after.Entity.GrantRecordsVersion != before.Entity.GrantRecordsVersion+1 {
		t.Errorf("namespace GrantRecordsVersion = %d, want %d", after.Entity.GrantRecordsVersion, before.Entity.GrantRecordsVersion+1)
	}

	roleAfterGrant := requireSuccess(t, mgr.LoadResolvedEntityByID(cc, catalog.ID, role.Entity.ID, types.EntityTypeCatalogRole), "LoadResolvedEntityByID(role) after grant")
	if roleAfterGrant.Entity.GrantRecordsVersion != role.Entity.GrantRecordsVersion+1 {
		t.Errorf("role GrantRecordsVersion = %d, want %d", roleAfterGrant.Entity.GrantRecordsVersion, role.Entity.GrantRecordsVersion+1)
	}

	revokeResult := mgr.RevokePrivilegeOnSecurableFromRole(cc, &types.Entity{CatalogID: catalog.ID, ID: ns.ID}, &types.Entity{CatalogID: catalog.ID, ID: role.Entity.ID}, types.PrivilegeCatalogManageMetadata)
	if !revokeResult.IsSuccess() {
		t.Fatalf("RevokePrivilegeOnSecurableFromRole status = %s", revokeResult.Status)
	}
	revoked := requireSuccess(t, mgr.LoadResolvedEntityByID(cc, catalog.ID, ns.ID, types.EntityTypeNamespace), "LoadResolvedEntityByID(ns1) after revoke")
	if revoked.Entity.GrantRecordsVersion != after.Entity.GrantRecordsVersion+1 {
		t.Errorf("namespace GrantRecordsVersion after revoke = %d, want %d", revoked.Entity.GrantRecordsVersion, after.Entity.GrantRecordsVersion+1)
	}

	if r := mgr.RevokePrivilegeOnSecurableFromRole(cc, &types.Entity{CatalogID: catalog.ID, ID: ns.ID}, &types.Entity{CatalogID: catalog.ID, ID: role.Entity.ID}, types.PrivilegeCatalogManageMetadata); r.IsSuccess() || r.Status != types.StatusGrantNotFound {
		t.Errorf("re-revoking a gone grant = (%v, %s), want (false, %s)", r.IsSuccess(), r.Status, types.StatusGrantNotFound)
	}
}

func TestRenameEntity_ConcurrentVersionConflict(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	catalog := requireSuccess(t, mgr.CreateCatalog(cc, &types.Entity{Name: "c1"}, nil, ""), "CreateCatalog")
	ns := requireSuccess(t, mgr.CreateEntityIfNotExists(cc, catalogPath(catalog.ID), &types.Entity{Name: "ns1", TypeCode: types.EntityTypeNamespace}), "CreateEntityIfNotExists(ns1)")

	stale := &types.Entity{CatalogID: catalog.ID, ID: ns.ID, TypeCode: types.EntityTypeNamespace, EntityVersion: ns.EntityVersion}
	renamed := requireSuccess(t, mgr.RenameEntity(cc, catalogPath(catalog.ID), stale, catalogPath(catalog.ID), &types.Entity{Name: "ns1-renamed"}), "RenameEntity")
	if renamed.Name != "ns1-renamed" {
		t.Fatalf("renamed.Name = %s, want ns1-renamed", renamed.Name)
	}

	// stale now points at the pre-rename version; retrying must report a
	// concurrency conflict rather than silently clobbering the rename.
	result := mgr.RenameEntity(cc, catalogPath(catalog.ID), stale, catalogPath(catalog.ID), &types.Entity{Name: "ns1-again"})
	if result.IsSuccess() {
		t.Fatal("expected stale rename to fail")
	}
	if result.Status != types.StatusTargetEntityConcurrentlyMod {
		t.Errorf("status = %s, want %s", result.Status, types.StatusTargetEntityConcurrentlyMod)
	}
}

func TestLoadTasks_LeaseTimeoutGatesReassignment(t *testing.T) {
	mgr, cc := newAtomicManager(t)
	requireSuccess(t, mgr.BootstrapPolarisService(cc), "bootstrap")
	requireSuccess(t, mgr.CreatePrincipal(cc, &types.Entity{Name: "doomed"}), "CreatePrincipal")
	root := mustRoot(t, mgr, cc)
	principal := requireSuccess(t, mgr.LoadResolvedEntityByName(cc, types.NullID, root.ID, types.EntityTypePrincipal, "doomed"), "LoadResolvedEntityByName(doomed)")
	requireSuccess(t, mgr.DropEntityIfExists(cc, nil, &types.Entity{CatalogID: types.NullID, ID: principal.Entity.ID, TypeCode: types.EntityTypePrincipal}, nil, true), "DropEntityIfExists(doomed, cleanup=true)")

	leasedA := requireSuccess(t, mgr.LoadTasks(cc, "executor-a", 10), "LoadTasks(executor-a)")
	if len(leasedA) != 1 {
		t.Fatalf("leasedA = %d tasks, want 1", len(leasedA))
	}

	leasedB := requireSuccess(t, mgr.LoadTasks(cc, "executor-b", 10), "LoadTasks(executor-b) immediately after")
	if len(leasedB) != 0 {
		t.Fatalf("leasedB = %d tasks, want 0 (task still within lease timeout)", len(leasedB))
	}

	future := leasedA[0].LastUpdateTimestamp.Add(TaskTimeout(cc) + time.Second)
	ccFuture := &CallContext{Clock: func() time.Time { return future }}
	leasedC := requireSuccess(t, mgr.LoadTasks(ccFuture, "executor-c", 10), "LoadTasks(executor-c) after timeout")
	if len(leasedC) != 1 {
		t.Fatalf("leasedC = %d tasks, want 1 (task became re-leasable after timeout)", len(leasedC))
	}
}
