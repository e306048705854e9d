package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/icebase/metastore/pkg/types"
)

var (
	bucketEntities      = []byte("entities")
	bucketActiveNames   = []byte("active_names")
	bucketGrantsForward = []byte("grants_by_securable")
	bucketGrantsReverse = []byte("grants_by_grantee")
	bucketSecrets       = []byte("principal_secrets")
	bucketStorageInteg  = []byte("storage_integrations")
	bucketIDs           = []byte("ids")
)

const keySep = "\x00"

func entityKey(catalogID, id string) []byte {
	return []byte(catalogID + keySep + id)
}

func activeNameKey(catalogID, parentID string, typeCode types.EntityType, name string) []byte {
	return []byte(catalogID + keySep + parentID + keySep + string(typeCode) + keySep + name)
}

func forwardGrantKey(r types.GrantRecord) []byte {
	return []byte(r.SecurableCatalogID + keySep + r.SecurableID + keySep + r.GranteeCatalogID + keySep + r.GranteeID + keySep + string(r.PrivilegeCode))
}

func reverseGrantKey(r types.GrantRecord) []byte {
	return []byte(r.GranteeCatalogID + keySep + r.GranteeID + keySep + r.SecurableCatalogID + keySep + r.SecurableID + keySep + string(r.PrivilegeCode))
}

// boltExec abstracts "run this against a fresh transaction" (top-level
// BoltPersistence) from "run this against the transaction we're already
// inside" (the handle RunInTransaction hands to its callback), so the
// slice implementation below is written once and reused for both.
type boltExec interface {
	View(fn func(*bolt.Tx) error) error
	Update(fn func(*bolt.Tx) error) error
}

type dbExec struct{ db *bolt.DB }

func (d dbExec) View(fn func(*bolt.Tx) error) error   { return d.db.View(fn) }
func (d dbExec) Update(fn func(*bolt.Tx) error) error { return d.db.Update(fn) }

type txExec struct{ tx *bolt.Tx }

func (t txExec) View(fn func(*bolt.Tx) error) error   { return fn(t.tx) }
func (t txExec) Update(fn func(*bolt.Tx) error) error { return fn(t.tx) }

// boltBackend implements BasePersistence against a boltExec. It carries
// no lifecycle of its own: Close is a no-op here, only BoltPersistence's
// Close tears down the underlying *bolt.DB.
type boltBackend struct {
	exec boltExec
}

func (b *boltBackend) Close() error { return nil }

func (b *boltBackend) GenerateNewID(cc *CallContext) (string, error) {
	var id uint64
	err := b.exec.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIDs)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return nil
	})
	return strconv.FormatUint(id, 10), err
}

func (b *boltBackend) LookupEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType) (*types.Entity, error) {
	var entity *types.Entity
	err := b.exec.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get(entityKey(catalogID, id))
		if data == nil {
			return fmt.Errorf("entity %s/%s: %w", catalogID, id, ErrNotFound)
		}
		var e types.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		entity = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (b *boltBackend) LookupEntities(cc *CallContext, keys []EntityKey) ([]*types.Entity, error) {
	var result []*types.Entity
	err := b.exec.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntities)
		for _, k := range keys {
			data := bucket.Get(entityKey(k.CatalogID, k.ID))
			if data == nil {
				continue
			}
			var e types.Entity
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			result = append(result, &e)
		}
		return nil
	})
	return result, err
}

func (b *boltBackend) WriteEntity(cc *CallContext, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		return writeEntityTx(tx, entity, nameOrParentChanged, original)
	})
}

func writeEntityTx(tx *bolt.Tx, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	entities := tx.Bucket(bucketEntities)
	names := tx.Bucket(bucketActiveNames)

	key := entityKey(entity.CatalogID, entity.ID)
	existing := entities.Get(key)

	if original == nil {
		if existing != nil {
			var stored types.Entity
			if err := json.Unmarshal(existing, &stored); err != nil {
				return err
			}
			return &EntityAlreadyExistsError{Existing: &stored}
		}
		if collision := names.Get(activeNameKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name)); collision != nil {
			id := string(collision)
			if id != entity.ID {
				data := entities.Get(entityKey(entity.CatalogID, id))
				var stored types.Entity
				if data != nil {
					_ = json.Unmarshal(data, &stored)
				}
				return &EntityAlreadyExistsError{Existing: &stored}
			}
		}
	} else if existing != nil {
		var stored types.Entity
		if err := json.Unmarshal(existing, &stored); err != nil {
			return err
		}
		if stored.EntityVersion != original.EntityVersion || stored.GrantRecordsVersion != original.GrantRecordsVersion {
			return &RetryOnConcurrencyError{Reason: "entity version mismatch"}
		}
	} else {
		return &RetryOnConcurrencyError{Reason: "entity concurrently deleted"}
	}

	if nameOrParentChanged && original != nil {
		if err := names.Delete(activeNameKey(original.CatalogID, original.ParentID, original.TypeCode, original.Name)); err != nil {
			return err
		}
	}
	if original == nil || nameOrParentChanged {
		if err := names.Put(activeNameKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name), []byte(entity.ID)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	return entities.Put(key, data)
}

func (b *boltBackend) WriteEntities(cc *CallContext, entityList []*types.Entity, originals []*types.Entity) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		for i, entity := range entityList {
			var original *types.Entity
			if i < len(originals) {
				original = originals[i]
			}
			if err := writeEntityTx(tx, entity, original != nil && (original.Name != entity.Name || original.ParentID != entity.ParentID), original); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) DeleteEntity(cc *CallContext, entity *types.Entity) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketEntities).Delete(entityKey(entity.CatalogID, entity.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketActiveNames).Delete(activeNameKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name))
	})
}

func (b *boltBackend) LookupEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (*types.Entity, error) {
	var id string
	err := b.exec.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketActiveNames).Get(activeNameKey(catalogID, parentID, typeCode, name))
		if data == nil {
			return fmt.Errorf("entity %s/%s/%s/%s: %w", catalogID, parentID, typeCode, name, ErrNotFound)
		}
		id = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.LookupEntity(cc, catalogID, id, typeCode)
}

func (b *boltBackend) LookupEntityIDAndSubTypeByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (string, types.SubType, bool, error) {
	entity, err := b.LookupEntityByName(cc, catalogID, parentID, typeCode, name)
	if err != nil {
		if errIsNotFound(err) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return entity.ID, entity.SubTypeCode, true, nil
}

func (b *boltBackend) ListEntities(cc *CallContext, catalogID, parentID string, typeCode types.EntityType) ([]*types.Entity, error) {
	var result []*types.Entity
	prefix := []byte(catalogID + keySep)
	err := b.exec.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketEntities).Cursor()
		for k, v := cur.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = cur.Next() {
			var e types.Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ParentID == parentID && e.TypeCode == typeCode {
				result = append(result, &e)
			}
		}
		return nil
	})
	return result, err
}

func (b *boltBackend) HasChildren(cc *CallContext, optionalTypeCode types.EntityType, catalogID, parentID string) (bool, error) {
	var has bool
	prefix := []byte(catalogID + keySep)
	err := b.exec.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketEntities).Cursor()
		for k, v := cur.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = cur.Next() {
			var e types.Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ParentID != parentID {
				continue
			}
			if optionalTypeCode != "" && e.TypeCode != optionalTypeCode {
				continue
			}
			has = true
			return nil
		}
		return nil
	})
	return has, err
}

func (b *boltBackend) LookupEntityVersions(cc *CallContext, keys []EntityKey) (map[EntityKey]EntityVersions, error) {
	result := make(map[EntityKey]EntityVersions, len(keys))
	err := b.exec.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntities)
		for _, k := range keys {
			data := bucket.Get(entityKey(k.CatalogID, k.ID))
			if data == nil {
				continue
			}
			var e types.Entity
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			result[k] = EntityVersions{EntityVersion: e.EntityVersion, GrantRecordsVersion: e.GrantRecordsVersion}
		}
		return nil
	})
	return result, err
}

func (b *boltBackend) LookupEntityGrantRecordsVersion(cc *CallContext, catalogID, id string) (int64, error) {
	entity, err := b.LookupEntity(cc, catalogID, id, "")
	if err != nil {
		return 0, err
	}
	return entity.GrantRecordsVersion, nil
}

func (b *boltBackend) WriteToGrantRecords(cc *CallContext, record types.GrantRecord) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketGrantsForward).Put(forwardGrantKey(record), data); err != nil {
			return err
		}
		return tx.Bucket(bucketGrantsReverse).Put(reverseGrantKey(record), data)
	})
}

func (b *boltBackend) DeleteFromGrantRecords(cc *CallContext, record types.GrantRecord) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketGrantsForward).Delete(forwardGrantKey(record)); err != nil {
			return err
		}
		return tx.Bucket(bucketGrantsReverse).Delete(reverseGrantKey(record))
	})
}

func (b *boltBackend) DeleteAllEntityGrantRecords(cc *CallContext, entity *types.Entity, onGrantee, onSecurable bool) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		if onSecurable {
			records, err := scanGrantPrefix(tx.Bucket(bucketGrantsForward), entity.CatalogID+keySep+entity.ID+keySep)
			if err != nil {
				return err
			}
			for _, r := range records {
				if err := tx.Bucket(bucketGrantsForward).Delete(forwardGrantKey(r)); err != nil {
					return err
				}
				if err := tx.Bucket(bucketGrantsReverse).Delete(reverseGrantKey(r)); err != nil {
					return err
				}
			}
		}
		if onGrantee {
			records, err := scanGrantPrefix(tx.Bucket(bucketGrantsReverse), entity.CatalogID+keySep+entity.ID+keySep)
			if err != nil {
				return err
			}
			for _, r := range records {
				if err := tx.Bucket(bucketGrantsForward).Delete(forwardGrantKey(r)); err != nil {
					return err
				}
				if err := tx.Bucket(bucketGrantsReverse).Delete(reverseGrantKey(r)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func scanGrantPrefix(bucket *bolt.Bucket, prefix string) ([]types.GrantRecord, error) {
	var result []types.GrantRecord
	cur := bucket.Cursor()
	p := []byte(prefix)
	for k, v := cur.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = cur.Next() {
		var r types.GrantRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func (b *boltBackend) LoadAllGrantRecordsOnGrantee(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error) {
	var result []types.GrantRecord
	err := b.exec.View(func(tx *bolt.Tx) error {
		records, err := scanGrantPrefix(tx.Bucket(bucketGrantsReverse), catalogID+keySep+id+keySep)
		result = records
		return err
	})
	return result, err
}

func (b *boltBackend) LoadAllGrantRecordsOnSecurable(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error) {
	var result []types.GrantRecord
	err := b.exec.View(func(tx *bolt.Tx) error {
		records, err := scanGrantPrefix(tx.Bucket(bucketGrantsForward), catalogID+keySep+id+keySep)
		result = records
		return err
	})
	return result, err
}

func (b *boltBackend) LookupGrantRecord(cc *CallContext, securableCatalogID, securableID, granteeCatalogID, granteeID string, priv types.PrivilegeCode) (*types.GrantRecord, error) {
	record := types.GrantRecord{
		SecurableCatalogID: securableCatalogID,
		SecurableID:        securableID,
		GranteeCatalogID:   granteeCatalogID,
		GranteeID:          granteeID,
		PrivilegeCode:      priv,
	}
	var result *types.GrantRecord
	err := b.exec.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGrantsForward).Get(forwardGrantKey(record))
		if data == nil {
			return fmt.Errorf("grant record: %w", ErrNotFound)
		}
		var r types.GrantRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		result = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *boltBackend) LoadPrincipalSecrets(cc *CallContext, clientID string) (*types.PrincipalSecret, error) {
	var secret *types.PrincipalSecret
	err := b.exec.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSecrets).Get([]byte(clientID))
		if data == nil {
			return fmt.Errorf("principal secret %s: %w", clientID, ErrNotFound)
		}
		var s types.PrincipalSecret
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		secret = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (b *boltBackend) GenerateNewPrincipalSecrets(cc *CallContext, principalName, principalID string) (*types.PrincipalSecretCredentials, error) {
	clientID, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	mainSecret, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	secondarySecret, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	stored := types.PrincipalSecret{
		ClientID:            clientID,
		MainSecretHash:      hashSecret(mainSecret),
		SecondarySecretHash: hashSecret(secondarySecret),
		PrincipalID:         principalID,
	}
	err = b.exec.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSecrets).Put([]byte(clientID), data)
	})
	if err != nil {
		return nil, err
	}
	return &types.PrincipalSecretCredentials{
		ClientID:        clientID,
		PrincipalID:     principalID,
		MainSecret:      mainSecret,
		SecondarySecret: secondarySecret,
	}, nil
}

func (b *boltBackend) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error) {
	var creds *types.PrincipalSecretCredentials
	err := b.exec.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSecrets)
		data := bucket.Get([]byte(clientID))
		if data == nil {
			return fmt.Errorf("principal secret %s: %w", clientID, ErrNotFound)
		}
		var stored types.PrincipalSecret
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		if oldSecretHash != "" && stored.MainSecretHash != oldSecretHash && stored.SecondarySecretHash != oldSecretHash {
			return &RetryOnConcurrencyError{Reason: "old secret hash does not match stored secret"}
		}
		newMain, err := randomHex(32)
		if err != nil {
			return err
		}
		stored.SecondarySecretHash = stored.MainSecretHash
		stored.MainSecretHash = hashSecret(newMain)
		newData, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(clientID), newData); err != nil {
			return err
		}
		creds = &types.PrincipalSecretCredentials{
			ClientID:    clientID,
			PrincipalID: principalID,
			MainSecret:  newMain,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// putPrincipalSecret stores an already-resolved secret record verbatim,
// with no randomness of its own. It exists so Raft replicas can apply the
// same concrete record the proposing node generated via
// GenerateNewPrincipalSecrets/RotatePrincipalSecrets, instead of each
// replica calling crypto/rand independently and diverging.
func (b *boltBackend) putPrincipalSecret(cc *CallContext, secret types.PrincipalSecret) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(secret)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSecrets).Put([]byte(secret.ClientID), data)
	})
}

func (b *boltBackend) DeletePrincipalSecrets(cc *CallContext, clientID, principalID string) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete([]byte(clientID))
	})
}

func (b *boltBackend) CreateStorageIntegration(cc *CallContext, catalogID, entityID, config string) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorageInteg).Put([]byte(catalogID+keySep+entityID), []byte(config))
	})
}

func (b *boltBackend) PersistStorageIntegrationIfNeeded(cc *CallContext, entity *types.Entity, config string) error {
	if config == "" {
		return nil
	}
	return b.CreateStorageIntegration(cc, entity.CatalogID, entity.ID, config)
}

func (b *boltBackend) LoadStorageIntegration(cc *CallContext, entity *types.Entity) (string, bool, error) {
	var config string
	var found bool
	err := b.exec.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStorageInteg).Get([]byte(entity.CatalogID + keySep + entity.ID))
		if data == nil {
			return nil
		}
		config = string(data)
		found = true
		return nil
	})
	return config, found, err
}

func (b *boltBackend) DeleteAll(cc *CallContext) error {
	return b.exec.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntities, bucketActiveNames, bucketGrantsForward, bucketGrantsReverse, bucketSecrets, bucketStorageInteg, bucketIDs} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// snapshotEntities dumps every entity in the store, for use by the Raft
// FSM's Snapshot; ListEntities can't be reused since it's scoped to one
// catalog/parent/type.
func (b *boltBackend) snapshotEntities(cc *CallContext) ([]*types.Entity, error) {
	var result []*types.Entity
	err := b.exec.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			var e types.Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			result = append(result, &e)
			return nil
		})
	})
	return result, err
}

// snapshotGrants dumps every grant record via the forward index, which
// holds exactly one copy of each record (the reverse index mirrors it).
func (b *boltBackend) snapshotGrants(cc *CallContext) ([]types.GrantRecord, error) {
	var result []types.GrantRecord
	err := b.exec.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGrantsForward).ForEach(func(k, v []byte) error {
			var r types.GrantRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			result = append(result, r)
			return nil
		})
	})
	return result, err
}

func errIsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), ErrNotFound.Error())
}

// BoltPersistence is a bbolt-backed TransactionalPersistence: every
// public call opens its own transaction, and RunInTransaction /
// RunInReadTransaction give callers a handle scoped to one transaction so
// a sequence of slice operations commits or rolls back together.
type BoltPersistence struct {
	boltBackend
	db *bolt.DB
}

// NewBoltPersistence opens (creating if needed) a bbolt database under
// dataDir and ensures every bucket this backend needs exists.
func NewBoltPersistence(dataDir string) (*BoltPersistence, error) {
	dbPath := filepath.Join(dataDir, "metastore.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntities, bucketActiveNames, bucketGrantsForward, bucketGrantsReverse, bucketSecrets, bucketStorageInteg, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltPersistence{boltBackend: boltBackend{exec: dbExec{db}}, db: db}, nil
}

// Close closes the underlying bbolt database.
func (p *BoltPersistence) Close() error {
	return p.db.Close()
}

// RunInTransaction runs f inside one read-write bbolt transaction.
func (p *BoltPersistence) RunInTransaction(cc *CallContext, f TransactionFunc) (any, error) {
	var result any
	err := p.db.Update(func(tx *bolt.Tx) error {
		txBackend := &boltBackend{exec: txExec{tx}}
		r, err := f(txBackend)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// RunInReadTransaction runs f inside one read-only bbolt transaction. Any
// write attempted by f fails with bbolt's ErrTxNotWritable.
func (p *BoltPersistence) RunInReadTransaction(cc *CallContext, f TransactionFunc) (any, error) {
	var result any
	err := p.db.View(func(tx *bolt.Tx) error {
		txBackend := &boltBackend{exec: txExec{tx}}
		r, err := f(txBackend)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// RunActionInTransaction is RunInTransaction without a return value.
func (p *BoltPersistence) RunActionInTransaction(cc *CallContext, f ActionFunc) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		txBackend := &boltBackend{exec: txExec{tx}}
		return f(txBackend)
	})
}

var (
	_ TransactionalPersistence = (*BoltPersistence)(nil)
	_ BasePersistence           = (*boltBackend)(nil)
)
