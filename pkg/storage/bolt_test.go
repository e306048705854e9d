package storage

import (
	"errors"
	"testing"

	"github.com/icebase/metastore/pkg/types"
)

var errBoom = errors.New("boom")

func newTestBoltPersistence(t *testing.T) *BoltPersistence {
	t.Helper()
	p, err := NewBoltPersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltPersistence() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func testCallContext() *CallContext {
	return &CallContext{}
}

func TestBoltPersistence_WriteAndLookupEntity(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{
		CatalogID: "cat1",
		ID:        "ent1",
		ParentID:  types.NullID,
		TypeCode:  types.EntityTypeNamespace,
		Name:      "ns1",
	}

	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}

	got, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace)
	if err != nil {
		t.Fatalf("LookupEntity() error = %v", err)
	}
	if got.Name != "ns1" {
		t.Errorf("Name = %v, want ns1", got.Name)
	}
}

func TestBoltPersistence_WriteEntity_DuplicateID(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("first WriteEntity() error = %v", err)
	}

	dup := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1-renamed"}
	err := p.WriteEntity(cc, dup, false, nil)
	if err == nil {
		t.Fatal("expected error creating duplicate id, got nil")
	}
	if _, ok := IsEntityAlreadyExists(err); !ok {
		t.Errorf("error = %v, want *EntityAlreadyExistsError", err)
	}
}

func TestBoltPersistence_WriteEntity_DuplicateName(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	a := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, a, false, nil); err != nil {
		t.Fatalf("WriteEntity(a) error = %v", err)
	}

	b := &types.Entity{CatalogID: "cat1", ID: "ent2", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	err := p.WriteEntity(cc, b, false, nil)
	if err == nil {
		t.Fatal("expected error creating duplicate active name, got nil")
	}
	if _, ok := IsEntityAlreadyExists(err); !ok {
		t.Errorf("error = %v, want *EntityAlreadyExistsError", err)
	}
}

func TestBoltPersistence_WriteEntity_VersionConflict(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1", EntityVersion: 1}
	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}

	stale := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1-renamed", EntityVersion: 2}
	staleOriginal := &types.Entity{EntityVersion: 0, GrantRecordsVersion: 0}

	err := p.WriteEntity(cc, stale, true, staleOriginal)
	if err == nil {
		t.Fatal("expected retry-on-concurrency error, got nil")
	}
	if !IsRetryOnConcurrency(err) {
		t.Errorf("error = %v, want *RetryOnConcurrencyError", err)
	}
}

func TestBoltPersistence_LookupEntityByName(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}

	got, err := p.LookupEntityByName(cc, "cat1", types.NullID, types.EntityTypeNamespace, "ns1")
	if err != nil {
		t.Fatalf("LookupEntityByName() error = %v", err)
	}
	if got.ID != "ent1" {
		t.Errorf("ID = %v, want ent1", got.ID)
	}

	_, _, found, err := p.LookupEntityIDAndSubTypeByName(cc, "cat1", types.NullID, types.EntityTypeNamespace, "missing")
	if err != nil {
		t.Fatalf("LookupEntityIDAndSubTypeByName() error = %v", err)
	}
	if found {
		t.Error("expected found = false for missing name")
	}
}

func TestBoltPersistence_DeleteEntity(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}
	if err := p.DeleteEntity(cc, entity); err != nil {
		t.Fatalf("DeleteEntity() error = %v", err)
	}

	if _, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace); err == nil {
		t.Error("expected error looking up deleted entity, got nil")
	}
}

func TestBoltPersistence_ListEntitiesAndHasChildren(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	parent := &types.Entity{CatalogID: "cat1", ID: "cat-root", ParentID: types.NullID, TypeCode: types.EntityTypeCatalog, Name: "c1"}
	if err := p.WriteEntity(cc, parent, false, nil); err != nil {
		t.Fatalf("WriteEntity(parent) error = %v", err)
	}

	for i, name := range []string{"ns1", "ns2"} {
		ns := &types.Entity{CatalogID: "cat1", ID: "ns" + string(rune('0'+i)), ParentID: "cat-root", TypeCode: types.EntityTypeNamespace, Name: name}
		if err := p.WriteEntity(cc, ns, false, nil); err != nil {
			t.Fatalf("WriteEntity(ns) error = %v", err)
		}
	}

	list, err := p.ListEntities(cc, "cat1", "cat-root", types.EntityTypeNamespace)
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len(list) = %d, want 2", len(list))
	}

	has, err := p.HasChildren(cc, "", "cat1", "cat-root")
	if err != nil {
		t.Fatalf("HasChildren() error = %v", err)
	}
	if !has {
		t.Error("HasChildren() = false, want true")
	}

	has, err = p.HasChildren(cc, "", "cat1", "no-such-parent")
	if err != nil {
		t.Fatalf("HasChildren() error = %v", err)
	}
	if has {
		t.Error("HasChildren() = true, want false")
	}
}

func TestBoltPersistence_GrantRecords(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	record := types.GrantRecord{
		SecurableCatalogID: "cat1",
		SecurableID:        "ns1",
		GranteeCatalogID:   "cat1",
		GranteeID:          "role1",
		PrivilegeCode:      types.PrivilegeCatalogManageMetadata,
	}

	if err := p.WriteToGrantRecords(cc, record); err != nil {
		t.Fatalf("WriteToGrantRecords() error = %v", err)
	}

	onGrantee, err := p.LoadAllGrantRecordsOnGrantee(cc, "cat1", "role1")
	if err != nil {
		t.Fatalf("LoadAllGrantRecordsOnGrantee() error = %v", err)
	}
	if len(onGrantee) != 1 {
		t.Fatalf("len(onGrantee) = %d, want 1", len(onGrantee))
	}

	onSecurable, err := p.LoadAllGrantRecordsOnSecurable(cc, "cat1", "ns1")
	if err != nil {
		t.Fatalf("LoadAllGrantRecordsOnSecurable() error = %v", err)
	}
	if len(onSecurable) != 1 {
		t.Fatalf("len(onSecurable) = %d, want 1", len(onSecurable))
	}

	found, err := p.LookupGrantRecord(cc, "cat1", "ns1", "cat1", "role1", types.PrivilegeCatalogManageMetadata)
	if err != nil {
		t.Fatalf("LookupGrantRecord() error = %v", err)
	}
	if found.GranteeID != "role1" {
		t.Errorf("GranteeID = %v, want role1", found.GranteeID)
	}

	if err := p.DeleteFromGrantRecords(cc, record); err != nil {
		t.Fatalf("DeleteFromGrantRecords() error = %v", err)
	}
	onGrantee, err = p.LoadAllGrantRecordsOnGrantee(cc, "cat1", "role1")
	if err != nil {
		t.Fatalf("LoadAllGrantRecordsOnGrantee() error = %v", err)
	}
	if len(onGrantee) != 0 {
		t.Errorf("len(onGrantee) = %d, want 0 after delete", len(onGrantee))
	}
}

func TestBoltPersistence_DeleteAllEntityGrantRecords(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	securable := &types.Entity{CatalogID: "cat1", ID: "ns1", TypeCode: types.EntityTypeNamespace, Name: "ns1"}

	records := []types.GrantRecord{
		{SecurableCatalogID: "cat1", SecurableID: "ns1", GranteeCatalogID: "cat1", GranteeID: "role1", PrivilegeCode: types.PrivilegeCatalogManageMetadata},
		{SecurableCatalogID: "cat1", SecurableID: "ns1", GranteeCatalogID: "cat1", GranteeID: "role2", PrivilegeCode: types.PrivilegeCatalogManageAccess},
	}
	for _, r := range records {
		if err := p.WriteToGrantRecords(cc, r); err != nil {
			t.Fatalf("WriteToGrantRecords() error = %v", err)
		}
	}

	if err := p.DeleteAllEntityGrantRecords(cc, securable, false, true); err != nil {
		t.Fatalf("DeleteAllEntityGrantRecords() error = %v", err)
	}

	remaining, err := p.LoadAllGrantRecordsOnSecurable(cc, "cat1", "ns1")
	if err != nil {
		t.Fatalf("LoadAllGrantRecordsOnSecurable() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("len(remaining) = %d, want 0", len(remaining))
	}
}

func TestBoltPersistence_PrincipalSecretsLifecycle(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	creds, err := p.GenerateNewPrincipalSecrets(cc, "svc-account", "principal1")
	if err != nil {
		t.Fatalf("GenerateNewPrincipalSecrets() error = %v", err)
	}
	if creds.MainSecret == "" || creds.ClientID == "" {
		t.Fatal("GenerateNewPrincipalSecrets() returned empty credentials")
	}

	stored, err := p.LoadPrincipalSecrets(cc, creds.ClientID)
	if err != nil {
		t.Fatalf("LoadPrincipalSecrets() error = %v", err)
	}
	if stored.MainSecretHash == "" || stored.MainSecretHash == creds.MainSecret {
		t.Error("stored secret should be hashed, not plaintext")
	}

	rotated, err := p.RotatePrincipalSecrets(cc, creds.ClientID, "principal1", false, "")
	if err != nil {
		t.Fatalf("RotatePrincipalSecrets() error = %v", err)
	}
	if rotated.MainSecret == creds.MainSecret {
		t.Error("rotated secret should differ from original")
	}

	if err := p.DeletePrincipalSecrets(cc, creds.ClientID, "principal1"); err != nil {
		t.Fatalf("DeletePrincipalSecrets() error = %v", err)
	}
	if _, err := p.LoadPrincipalSecrets(cc, creds.ClientID); err == nil {
		t.Error("expected error loading deleted secret, got nil")
	}
}

func TestBoltPersistence_RunInTransaction(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	_, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
		if err := tx.WriteEntity(cc, entity, false, nil); err != nil {
			return nil, err
		}
		got, err := tx.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace)
		if err != nil {
			return nil, err
		}
		return got.Name, nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction() error = %v", err)
	}

	got, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace)
	if err != nil {
		t.Fatalf("LookupEntity() after transaction error = %v", err)
	}
	if got.Name != "ns1" {
		t.Errorf("Name = %v, want ns1", got.Name)
	}
}

func TestBoltPersistence_RunInTransaction_RollsBackOnError(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	_, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
		if err := tx.WriteEntity(cc, entity, false, nil); err != nil {
			return nil, err
		}
		return nil, errBoom
	})
	if err == nil {
		t.Fatal("expected error propagated from transaction body")
	}

	if _, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace); err == nil {
		t.Error("expected rollback: entity should not exist after failed transaction")
	}
}

func TestBoltPersistence_DeleteAll(t *testing.T) {
	p := newTestBoltPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, entity, false, nil); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}

	if err := p.DeleteAll(cc); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	if _, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace); err == nil {
		t.Error("expected error looking up entity after DeleteAll, got nil")
	}
}
