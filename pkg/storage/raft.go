package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	bolt "go.etcd.io/bbolt"

	"github.com/icebase/metastore/pkg/types"
)

// raftApplyResult is what every command handler in the FSM returns. Apply()
// runs in-process on the node that called raft.Apply, so the value survives
// the round trip through ApplyFuture.Response() without serialization -
// error sentinels like *EntityAlreadyExistsError stay intact.
type raftApplyResult struct {
	value any
	err   error
}

// command is one state mutation recorded in the Raft log.
type command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// batchCmd carries every mutation a single RunInTransaction call produced,
// so a multi-step operation (e.g. drop-entity-and-its-grants) replicates
// and applies as the one atomic unit the caller asked for, instead of as
// several independently-committed log entries.
type batchCmd struct {
	Commands []command `json:"commands"`
}

type writeEntityCmd struct {
	Entity              *types.Entity `json:"entity"`
	NameOrParentChanged bool          `json:"nameOrParentChanged"`
	Original            *types.Entity `json:"original"`
}

type writeEntitiesCmd struct {
	Entities  []*types.Entity `json:"entities"`
	Originals []*types.Entity `json:"originals"`
}

type grantCmd struct {
	Record types.GrantRecord `json:"record"`
}

type deleteAllEntityGrantsCmd struct {
	Entity      *types.Entity `json:"entity"`
	OnGrantee   bool          `json:"onGrantee"`
	OnSecurable bool          `json:"onSecurable"`
}

// putSecretCmd replicates an already-resolved principal secret record.
// GenerateNewPrincipalSecrets and RotatePrincipalSecrets both call
// crypto/rand on the proposing node before the command is built, so every
// replica applies the same concrete secret instead of independently
// rolling its own random bytes.
type putSecretCmd struct {
	Secret types.PrincipalSecret `json:"secret"`
}

type secretsDeleteCmd struct {
	ClientID    string `json:"clientId"`
	PrincipalID string `json:"principalId"`
}

type storageIntegrationCmd struct {
	CatalogID string `json:"catalogId"`
	EntityID  string `json:"entityId"`
	Config    string `json:"config"`
}

type persistStorageIntegrationCmd struct {
	Entity *types.Entity `json:"entity"`
	Config string        `json:"config"`
}

// metastoreFSM applies committed commands to a local BoltPersistence. Every
// node in the cluster runs the same commands in the same order, so the
// local Bolt state converges across replicas.
type metastoreFSM struct {
	backend *boltBackend
}

func newMetastoreFSM(backend *boltBackend) *metastoreFSM {
	return &metastoreFSM{backend: backend}
}

func (f *metastoreFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return &raftApplyResult{err: fmt.Errorf("failed to unmarshal command: %w", err)}
	}
	if cmd.Op == "batch" {
		return f.applyBatch(cmd.Data)
	}
	return applyOne(f.backend, cmd)
}

// applyBatch applies every sub-command of a RunInTransaction call inside a
// single real Bolt transaction, so the batch either lands in full or (on
// an error partway through, which should not happen for commands that
// already validated cleanly on the proposing node) not at all.
func (f *metastoreFSM) applyBatch(data json.RawMessage) *raftApplyResult {
	var batch batchCmd
	if err := json.Unmarshal(data, &batch); err != nil {
		return &raftApplyResult{err: fmt.Errorf("failed to unmarshal batch: %w", err)}
	}
	err := f.backend.exec.Update(func(tx *bolt.Tx) error {
		txBackend := &boltBackend{exec: txExec{tx}}
		for _, sub := range batch.Commands {
			if r := applyOne(txBackend, sub); r.err != nil {
				return r.err
			}
		}
		return nil
	})
	return &raftApplyResult{err: err}
}

// applyOne dispatches a single command against backend. It is used both
// for sub-commands of a batch (inside the batch's own transaction) and for
// lone commands; the only lone command RaftPersistence proposes is
// DeleteAll's "delete_all".
func applyOne(backend *boltBackend, cmd command) *raftApplyResult {
	cc := &CallContext{}

	switch cmd.Op {
	case "generate_id":
		id, err := backend.GenerateNewID(cc)
		return &raftApplyResult{value: id, err: err}

	case "write_entity":
		var c writeEntityCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.WriteEntity(cc, c.Entity, c.NameOrParentChanged, c.Original)
		return &raftApplyResult{err: err}

	case "write_entities":
		var c writeEntitiesCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.WriteEntities(cc, c.Entities, c.Originals)
		return &raftApplyResult{err: err}

	case "delete_entity":
		var entity types.Entity
		if err := json.Unmarshal(cmd.Data, &entity); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.DeleteEntity(cc, &entity)
		return &raftApplyResult{err: err}

	case "write_grant":
		var c grantCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.WriteToGrantRecords(cc, c.Record)
		return &raftApplyResult{err: err}

	case "delete_grant":
		var c grantCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.DeleteFromGrantRecords(cc, c.Record)
		return &raftApplyResult{err: err}

	case "delete_all_entity_grants":
		var c deleteAllEntityGrantsCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.DeleteAllEntityGrantRecords(cc, c.Entity, c.OnGrantee, c.OnSecurable)
		return &raftApplyResult{err: err}

	case "put_secret":
		var c putSecretCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.putPrincipalSecret(cc, c.Secret)
		return &raftApplyResult{err: err}

	case "delete_secrets":
		var c secretsDeleteCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.DeletePrincipalSecrets(cc, c.ClientID, c.PrincipalID)
		return &raftApplyResult{err: err}

	case "create_storage_integration":
		var c storageIntegrationCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.CreateStorageIntegration(cc, c.CatalogID, c.EntityID, c.Config)
		return &raftApplyResult{err: err}

	case "persist_storage_integration":
		var c persistStorageIntegrationCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return &raftApplyResult{err: err}
		}
		err := backend.PersistStorageIntegrationIfNeeded(cc, c.Entity, c.Config)
		return &raftApplyResult{err: err}

	case "delete_all":
		err := backend.DeleteAll(cc)
		return &raftApplyResult{err: err}

	default:
		return &raftApplyResult{err: fmt.Errorf("unknown command: %s", cmd.Op)}
	}
}

func (f *metastoreFSM) Snapshot() (raft.FSMSnapshot, error) {
	cc := &CallContext{}
	entities, err := f.backend.snapshotEntities(cc)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot entities: %w", err)
	}
	grants, err := f.backend.snapshotGrants(cc)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot grants: %w", err)
	}
	return &metastoreSnapshot{Entities: entities, Grants: grants}, nil
}

func (f *metastoreFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snapshot metastoreSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	cc := &CallContext{}
	if err := f.backend.DeleteAll(cc); err != nil {
		return fmt.Errorf("failed to clear state before restore: %w", err)
	}
	for _, entity := range snapshot.Entities {
		if err := f.backend.WriteEntity(cc, entity, true, nil); err != nil {
			return fmt.Errorf("failed to restore entity %s: %w", entity.ID, err)
		}
	}
	for _, record := range snapshot.Grants {
		if err := f.backend.WriteToGrantRecords(cc, record); err != nil {
			return fmt.Errorf("failed to restore grant: %w", err)
		}
	}
	return nil
}

type metastoreSnapshot struct {
	Entities []*types.Entity     `json:"entities"`
	Grants   []types.GrantRecord `json:"grants"`
}

func (s *metastoreSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *metastoreSnapshot) Release() {}

// recordingBackend runs mutating calls against a real Bolt transaction
// that RunInTransaction always rolls back afterward. Running them for
// real lets every precondition check (version conflicts, duplicate
// names, secret hash mismatches) run against live state and lets
// GenerateNewPrincipalSecrets/RotatePrincipalSecrets resolve their
// crypto/rand calls once, here, on the proposing node. Each successful
// call also records the deterministic command that reproduces it, so
// RunInTransaction can replicate the whole transaction as one Raft
// batch once the caller's function returns.
type recordingBackend struct {
	boltBackend
	commands []command
}

func (b *recordingBackend) record(op string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", op, err)
	}
	b.commands = append(b.commands, command{Op: op, Data: payload})
	return nil
}

func (b *recordingBackend) GenerateNewID(cc *CallContext) (string, error) {
	id, err := b.boltBackend.GenerateNewID(cc)
	if err != nil {
		return "", err
	}
	return id, b.record("generate_id", struct{}{})
}

func (b *recordingBackend) WriteEntity(cc *CallContext, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	if err := b.boltBackend.WriteEntity(cc, entity, nameOrParentChanged, original); err != nil {
		return err
	}
	return b.record("write_entity", writeEntityCmd{Entity: entity, NameOrParentChanged: nameOrParentChanged, Original: original})
}

func (b *recordingBackend) WriteEntities(cc *CallContext, entities []*types.Entity, originals []*types.Entity) error {
	if err := b.boltBackend.WriteEntities(cc, entities, originals); err != nil {
		return err
	}
	return b.record("write_entities", writeEntitiesCmd{Entities: entities, Originals: originals})
}

func (b *recordingBackend) DeleteEntity(cc *CallContext, entity *types.Entity) error {
	if err := b.boltBackend.DeleteEntity(cc, entity); err != nil {
		return err
	}
	return b.record("delete_entity", entity)
}

func (b *recordingBackend) WriteToGrantRecords(cc *CallContext, record types.GrantRecord) error {
	if err := b.boltBackend.WriteToGrantRecords(cc, record); err != nil {
		return err
	}
	return b.record("write_grant", grantCmd{Record: record})
}

func (b *recordingBackend) DeleteFromGrantRecords(cc *CallContext, record types.GrantRecord) error {
	if err := b.boltBackend.DeleteFromGrantRecords(cc, record); err != nil {
		return err
	}
	return b.record("delete_grant", grantCmd{Record: record})
}

func (b *recordingBackend) DeleteAllEntityGrantRecords(cc *CallContext, entity *types.Entity, onGrantee, onSecurable bool) error {
	if err := b.boltBackend.DeleteAllEntityGrantRecords(cc, entity, onGrantee, onSecurable); err != nil {
		return err
	}
	return b.record("delete_all_entity_grants", deleteAllEntityGrantsCmd{Entity: entity, OnGrantee: onGrantee, OnSecurable: onSecurable})
}

func (b *recordingBackend) recordSecret(cc *CallContext, clientID string) error {
	stored, err := b.boltBackend.LoadPrincipalSecrets(cc, clientID)
	if err != nil {
		return err
	}
	return b.record("put_secret", putSecretCmd{Secret: *stored})
}

func (b *recordingBackend) GenerateNewPrincipalSecrets(cc *CallContext, principalName, principalID string) (*types.PrincipalSecretCredentials, error) {
	creds, err := b.boltBackend.GenerateNewPrincipalSecrets(cc, principalName, principalID)
	if err != nil {
		return nil, err
	}
	if err := b.recordSecret(cc, creds.ClientID); err != nil {
		return nil, err
	}
	return creds, nil
}

func (b *recordingBackend) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error) {
	creds, err := b.boltBackend.RotatePrincipalSecrets(cc, clientID, principalID, reset, oldSecretHash)
	if err != nil {
		return nil, err
	}
	if err := b.recordSecret(cc, clientID); err != nil {
		return nil, err
	}
	return creds, nil
}

func (b *recordingBackend) DeletePrincipalSecrets(cc *CallContext, clientID, principalID string) error {
	if err := b.boltBackend.DeletePrincipalSecrets(cc, clientID, principalID); err != nil {
		return err
	}
	return b.record("delete_secrets", secretsDeleteCmd{ClientID: clientID, PrincipalID: principalID})
}

func (b *recordingBackend) CreateStorageIntegration(cc *CallContext, catalogID, entityID, config string) error {
	if err := b.boltBackend.CreateStorageIntegration(cc, catalogID, entityID, config); err != nil {
		return err
	}
	return b.record("create_storage_integration", storageIntegrationCmd{CatalogID: catalogID, EntityID: entityID, Config: config})
}

func (b *recordingBackend) PersistStorageIntegrationIfNeeded(cc *CallContext, entity *types.Entity, config string) error {
	if config == "" {
		return nil
	}
	return b.CreateStorageIntegration(cc, entity.CatalogID, entity.ID, config)
}

func (b *recordingBackend) DeleteAll(cc *CallContext) error {
	if err := b.boltBackend.DeleteAll(cc); err != nil {
		return err
	}
	return b.record("delete_all", struct{}{})
}

// RaftConfig configures a RaftPersistence node.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftPersistence is a TransactionalPersistence that replicates every
// write through a Raft log before applying it to a local BoltPersistence.
// Reads are served from local state, so a follower may briefly lag the
// leader; writes only succeed once a majority of the cluster has
// committed them.
type RaftPersistence struct {
	boltBackend
	cfg  RaftConfig
	bolt *BoltPersistence
	raft *raft.Raft
	fsm  *metastoreFSM

	// mu serializes RunInTransaction calls on this node: the recording
	// transaction that computes a batch's commands and the raft.Apply
	// that replicates them must not interleave with another recording
	// transaction, or GenerateNewID's sequence counter could diverge
	// between what was recorded and what gets applied.
	mu sync.Mutex
}

// NewRaftPersistence opens the local Bolt-backed state and prepares the
// FSM, but does not start a Raft instance. Call Bootstrap or Join next.
func NewRaftPersistence(cfg RaftConfig) (*RaftPersistence, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	bolt, err := NewBoltPersistence(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}
	fsm := newMetastoreFSM(&bolt.boltBackend)
	return &RaftPersistence{
		boltBackend: bolt.boltBackend,
		cfg:         cfg,
		bolt:        bolt,
		fsm:         fsm,
	}, nil
}

func raftConfig(nodeID string) *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(nodeID)
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (p *RaftPersistence) setupRaft() (*raft.TCPTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", p.cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(p.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(p.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(p.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(p.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}
	r, err := raft.NewRaft(raftConfig(p.cfg.NodeID), p.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}
	p.raft = r
	return transport, nil
}

// Bootstrap starts a single-node cluster with this node as the only voter.
func (p *RaftPersistence) Bootstrap() error {
	transport, err := p.setupRaft()
	if err != nil {
		return err
	}
	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(p.cfg.NodeID), Address: transport.LocalAddr()}},
	}
	future := p.raft.BootstrapCluster(configuration)
	return future.Error()
}

// Join starts Raft on this node without bootstrapping a configuration; the
// cluster leader is expected to AddVoter this node's address separately.
func (p *RaftPersistence) Join() error {
	_, err := p.setupRaft()
	return err
}

// AddVoter adds nodeID at address as a full voting member.
func (p *RaftPersistence) AddVoter(nodeID, address string) error {
	future := p.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds Raft leadership.
func (p *RaftPersistence) IsLeader() bool {
	return p.raft != nil && p.raft.State() == raft.Leader
}

// Stats exposes the underlying Raft instance's stat map (last_log_index,
// applied_index, num_peers, ...) for the metrics collector to scrape.
func (p *RaftPersistence) Stats() map[string]string {
	if p.raft == nil {
		return nil
	}
	return p.raft.Stats()
}

func (p *RaftPersistence) apply(op string, data any) (*raftApplyResult, error) {
	if p.raft == nil {
		return nil, fmt.Errorf("raft not started: call Bootstrap or Join first")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command payload: %w", err)
	}
	cmdBytes, err := json.Marshal(command{Op: op, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	future := p.raft.Apply(cmdBytes, 10*time.Second)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("raft apply failed: %w", err)
	}
	result, ok := future.Response().(*raftApplyResult)
	if !ok {
		return nil, fmt.Errorf("unexpected raft apply response type %T", future.Response())
	}
	return result, nil
}

// errDirectWrite reports that a mutating BasePersistence method was called
// directly on a RaftPersistence instead of through RunInTransaction, the
// only path that replicates. Without this, the call would silently fall
// through to the embedded local boltBackend and write data no other node
// in the cluster ever sees.
func errDirectWrite(method string) error {
	return fmt.Errorf("raft persistence: direct %s is unsupported outside a transaction; use RunInTransaction", method)
}

func (p *RaftPersistence) GenerateNewID(cc *CallContext) (string, error) {
	return "", errDirectWrite("GenerateNewID")
}

func (p *RaftPersistence) WriteEntity(cc *CallContext, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	return errDirectWrite("WriteEntity")
}

func (p *RaftPersistence) WriteEntities(cc *CallContext, entities []*types.Entity, originals []*types.Entity) error {
	return errDirectWrite("WriteEntities")
}

func (p *RaftPersistence) DeleteEntity(cc *CallContext, entity *types.Entity) error {
	return errDirectWrite("DeleteEntity")
}

func (p *RaftPersistence) WriteToGrantRecords(cc *CallContext, record types.GrantRecord) error {
	return errDirectWrite("WriteToGrantRecords")
}

func (p *RaftPersistence) DeleteFromGrantRecords(cc *CallContext, record types.GrantRecord) error {
	return errDirectWrite("DeleteFromGrantRecords")
}

func (p *RaftPersistence) DeleteAllEntityGrantRecords(cc *CallContext, entity *types.Entity, onGrantee, onSecurable bool) error {
	return errDirectWrite("DeleteAllEntityGrantRecords")
}

func (p *RaftPersistence) GenerateNewPrincipalSecrets(cc *CallContext, principalName, principalID string) (*types.PrincipalSecretCredentials, error) {
	return nil, errDirectWrite("GenerateNewPrincipalSecrets")
}

func (p *RaftPersistence) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error) {
	return nil, errDirectWrite("RotatePrincipalSecrets")
}

func (p *RaftPersistence) DeletePrincipalSecrets(cc *CallContext, clientID, principalID string) error {
	return errDirectWrite("DeletePrincipalSecrets")
}

func (p *RaftPersistence) CreateStorageIntegration(cc *CallContext, catalogID, entityID, config string) error {
	return errDirectWrite("CreateStorageIntegration")
}

func (p *RaftPersistence) PersistStorageIntegrationIfNeeded(cc *CallContext, entity *types.Entity, config string) error {
	return errDirectWrite("PersistStorageIntegrationIfNeeded")
}

func (p *RaftPersistence) DeleteAll(cc *CallContext) error {
	result, err := p.apply("delete_all", struct{}{})
	if err != nil {
		return err
	}
	return result.err
}

func (p *RaftPersistence) Close() error {
	if p.raft != nil {
		if err := p.raft.Shutdown().Error(); err != nil {
			return err
		}
	}
	return p.bolt.Close()
}

// RunInTransaction runs f against a recording handle backed by a real but
// always-rolled-back Bolt transaction, then replicates the commands it
// recorded as one batch through Raft. f's return value is computed once,
// on this node, against consistent state; the batch only exists to make
// every other replica converge on the same writes.
func (p *RaftPersistence) RunInTransaction(cc *CallContext, f TransactionFunc) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.bolt.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to begin recording transaction: %w", err)
	}
	rec := &recordingBackend{boltBackend: boltBackend{exec: txExec{tx}}}
	result, ferr := f(rec)
	if rbErr := tx.Rollback(); rbErr != nil && ferr == nil {
		return nil, fmt.Errorf("failed to roll back recording transaction: %w", rbErr)
	}
	if ferr != nil {
		return nil, ferr
	}
	if len(rec.commands) == 0 {
		return result, nil
	}
	applied, err := p.apply("batch", batchCmd{Commands: rec.commands})
	if err != nil {
		return nil, err
	}
	if applied.err != nil {
		return nil, applied.err
	}
	return result, nil
}

// RunInReadTransaction runs f against local state directly: reads don't
// need Raft consensus, only a consistent view of one Bolt transaction.
func (p *RaftPersistence) RunInReadTransaction(cc *CallContext, f TransactionFunc) (any, error) {
	return p.bolt.RunInReadTransaction(cc, f)
}

// RunActionInTransaction is RunInTransaction without a return value.
func (p *RaftPersistence) RunActionInTransaction(cc *CallContext, f ActionFunc) error {
	_, err := p.RunInTransaction(cc, func(tx BasePersistence) (any, error) {
		return nil, f(tx)
	})
	return err
}

var _ TransactionalPersistence = (*RaftPersistence)(nil)
