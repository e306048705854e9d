package storage

import (
	"testing"
	"time"

	"github.com/icebase/metastore/pkg/types"
)

func newTestRaftPersistence(t *testing.T) *RaftPersistence {
	t.Helper()
	p, err := NewRaftPersistence(RaftConfig{
		NodeID:   "node1",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewRaftPersistence() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	if err := p.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	waitForLeader(t, p)
	return p
}

func waitForLeader(t *testing.T, p *RaftPersistence) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.IsLeader() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("raft node never became leader")
}

func TestRaftPersistence_RunInTransaction_Replicates(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	_, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
		return nil, tx.WriteEntity(cc, entity, false, nil)
	})
	if err != nil {
		t.Fatalf("RunInTransaction() error = %v", err)
	}

	// The entity must be visible off the node's own local state, not just
	// inside the (always rolled back) recording transaction, proving the
	// write was actually applied through the Raft log.
	got, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace)
	if err != nil {
		t.Fatalf("LookupEntity() after RunInTransaction error = %v", err)
	}
	if got.Name != "ns1" {
		t.Errorf("Name = %v, want ns1", got.Name)
	}
}

func TestRaftPersistence_RunInTransaction_RollsBackOnError(t *testing.T) {
	p := newTestRaftPersistence(t)
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
		t.Error("expected no replicated write after a failed transaction body")
	}
}

func TestRaftPersistence_RunInTransaction_PreconditionFailureNeverReachesRaft(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	first := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if _, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return nil, tx.WriteEntity(cc, first, false, nil)
	}); err != nil {
		t.Fatalf("first RunInTransaction() error = %v", err)
	}

	dup := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1-renamed"}
	_, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return nil, tx.WriteEntity(cc, dup, false, nil)
	})
	if err == nil {
		t.Fatal("expected duplicate-id error, got nil")
	}
	if _, ok := IsEntityAlreadyExists(err); !ok {
		t.Errorf("error = %v, want *EntityAlreadyExistsError", err)
	}
}

func TestRaftPersistence_RunInTransaction_GenerateNewIDDeterministic(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
			return tx.GenerateNewID(cc)
		})
		if err != nil {
			t.Fatalf("RunInTransaction() error = %v", err)
		}
		ids = append(ids, id.(string))
	}
	if ids[0] == ids[1] || ids[1] == ids[2] {
		t.Errorf("GenerateNewID() produced repeated ids: %v", ids)
	}
}

func TestRaftPersistence_PrincipalSecretsLifecycle(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	credsAny, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return tx.GenerateNewPrincipalSecrets(cc, "svc-account", "principal1")
	})
	if err != nil {
		t.Fatalf("GenerateNewPrincipalSecrets() error = %v", err)
	}
	creds := credsAny.(*types.PrincipalSecretCredentials)
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

	rotatedAny, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return tx.RotatePrincipalSecrets(cc, creds.ClientID, "principal1", false, "")
	})
	if err != nil {
		t.Fatalf("RotatePrincipalSecrets() error = %v", err)
	}
	rotated := rotatedAny.(*types.PrincipalSecretCredentials)
	if rotated.MainSecret == creds.MainSecret {
		t.Error("rotated secret should differ from original")
	}

	afterRotate, err := p.LoadPrincipalSecrets(cc, creds.ClientID)
	if err != nil {
		t.Fatalf("LoadPrincipalSecrets() after rotate error = %v", err)
	}
	if afterRotate.MainSecretHash != hashSecret(rotated.MainSecret) {
		t.Error("replicated secret record does not match the rotated credentials")
	}

	if _, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return nil, tx.DeletePrincipalSecrets(cc, creds.ClientID, "principal1")
	}); err != nil {
		t.Fatalf("DeletePrincipalSecrets() error = %v", err)
	}
	if _, err := p.LoadPrincipalSecrets(cc, creds.ClientID); err == nil {
		t.Error("expected error loading deleted secret, got nil")
	}
}

func TestRaftPersistence_DirectWritesUnsupported(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
	if err := p.WriteEntity(cc, entity, false, nil); err == nil {
		t.Fatal("expected direct WriteEntity outside RunInTransaction to fail")
	}
	if _, err := p.GenerateNewID(cc); err == nil {
		t.Fatal("expected direct GenerateNewID outside RunInTransaction to fail")
	}
}

func TestRaftPersistence_DeleteAll(t *testing.T) {
	p := newTestRaftPersistence(t)
	cc := testCallContext()

	if _, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		entity := &types.Entity{CatalogID: "cat1", ID: "ent1", ParentID: types.NullID, TypeCode: types.EntityTypeNamespace, Name: "ns1"}
		return nil, tx.WriteEntity(cc, entity, false, nil)
	}); err != nil {
		t.Fatalf("RunInTransaction() error = %v", err)
	}

	if err := p.DeleteAll(cc); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if _, err := p.LookupEntity(cc, "cat1", "ent1", types.EntityTypeNamespace); err == nil {
		t.Error("expected error looking up entity after DeleteAll, got nil")
	}
}
