package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/icebase/metastore/pkg/types"
)

// MemoryAtomicPersistence is the in-memory reference AtomicPersistence:
// every slice is backed by a Go map guarded by one mutex, and every
// write is individually compare-and-swapped against the caller-supplied
// original. It has no transaction concept; TransactionalPersistence is
// not implemented.
type MemoryAtomicPersistence struct {
	mu sync.Mutex

	entities    map[EntityKey]*types.Entity
	activeNames map[string]string // activeNameKey string -> id
	grants      map[[5]string]types.GrantRecord
	secrets     map[string]*types.PrincipalSecret
	storageInt  map[EntityKey]string
}

// NewMemoryAtomicPersistence returns an empty in-memory backend.
func NewMemoryAtomicPersistence() *MemoryAtomicPersistence {
	return &MemoryAtomicPersistence{
		entities:    make(map[EntityKey]*types.Entity),
		activeNames: make(map[string]string),
		grants:      make(map[[5]string]types.GrantRecord),
		secrets:     make(map[string]*types.PrincipalSecret),
		storageInt:  make(map[EntityKey]string),
	}
}

func activeNameMapKey(catalogID, parentID string, typeCode types.EntityType, name string) string {
	return catalogID + keySep + parentID + keySep + string(typeCode) + keySep + name
}

func cloneEntity(e *types.Entity) *types.Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	if e.InternalProperties != nil {
		c.InternalProperties = make(map[string]string, len(e.InternalProperties))
		for k, v := range e.InternalProperties {
			c.InternalProperties[k] = v
		}
	}
	return &c
}

func (m *MemoryAtomicPersistence) Close() error { return nil }

func (m *MemoryAtomicPersistence) GenerateNewID(cc *CallContext) (string, error) {
	return uuid.New().String(), nil
}

func (m *MemoryAtomicPersistence) LookupEntity(cc *CallContext, catalogID, id string, typeCode types.EntityType) (*types.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[EntityKey{CatalogID: catalogID, ID: id}]
	if !ok {
		return nil, fmt.Errorf("entity %s/%s: %w", catalogID, id, ErrNotFound)
	}
	return cloneEntity(e), nil
}

func (m *MemoryAtomicPersistence) LookupEntities(cc *CallContext, keys []EntityKey) ([]*types.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*types.Entity
	for _, k := range keys {
		if e, ok := m.entities[k]; ok {
			result = append(result, cloneEntity(e))
		}
	}
	return result, nil
}

func (m *MemoryAtomicPersistence) WriteEntity(cc *CallContext, entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeEntityLocked(entity, nameOrParentChanged, original)
}

func (m *MemoryAtomicPersistence) writeEntityLocked(entity *types.Entity, nameOrParentChanged bool, original *types.Entity) error {
	key := EntityKey{CatalogID: entity.CatalogID, ID: entity.ID}
	stored, exists := m.entities[key]

	if original == nil {
		if exists {
			return &EntityAlreadyExistsError{Existing: cloneEntity(stored)}
		}
		nameKey := activeNameMapKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name)
		if existingID, ok := m.activeNames[nameKey]; ok && existingID != entity.ID {
			if collision, ok := m.entities[EntityKey{CatalogID: entity.CatalogID, ID: existingID}]; ok {
				return &EntityAlreadyExistsError{Existing: cloneEntity(collision)}
			}
		}
	} else if exists {
		if stored.EntityVersion != original.EntityVersion || stored.GrantRecordsVersion != original.GrantRecordsVersion {
			return &RetryOnConcurrencyError{Reason: "entity version mismatch"}
		}
	} else {
		return &RetryOnConcurrencyError{Reason: "entity concurrently deleted"}
	}

	if nameOrParentChanged && original != nil {
		delete(m.activeNames, activeNameMapKey(original.CatalogID, original.ParentID, original.TypeCode, original.Name))
	}
	if original == nil || nameOrParentChanged {
		m.activeNames[activeNameMapKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name)] = entity.ID
	}

	m.entities[key] = cloneEntity(entity)
	return nil
}

func (m *MemoryAtomicPersistence) WriteEntities(cc *CallContext, entityList []*types.Entity, originals []*types.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entity := range entityList {
		var original *types.Entity
		if i < len(originals) {
			original = originals[i]
		}
		changed := original != nil && (original.Name != entity.Name || original.ParentID != entity.ParentID)
		if err := m.writeEntityLocked(entity, changed, original); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryAtomicPersistence) DeleteEntity(cc *CallContext, entity *types.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, EntityKey{CatalogID: entity.CatalogID, ID: entity.ID})
	delete(m.activeNames, activeNameMapKey(entity.CatalogID, entity.ParentID, entity.TypeCode, entity.Name))
	return nil
}

func (m *MemoryAtomicPersistence) LookupEntityByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (*types.Entity, error) {
	m.mu.Lock()
	id, ok := m.activeNames[activeNameMapKey(catalogID, parentID, typeCode, name)]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("entity %s/%s/%s/%s: %w", catalogID, parentID, typeCode, name, ErrNotFound)
	}
	return m.LookupEntity(cc, catalogID, id, typeCode)
}

func (m *MemoryAtomicPersistence) LookupEntityIDAndSubTypeByName(cc *CallContext, catalogID, parentID string, typeCode types.EntityType, name string) (string, types.SubType, bool, error) {
	e, err := m.LookupEntityByName(cc, catalogID, parentID, typeCode, name)
	if err != nil {
		if errIsNotFound(err) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return e.ID, e.SubTypeCode, true, nil
}

func (m *MemoryAtomicPersistence) ListEntities(cc *CallContext, catalogID, parentID string, typeCode types.EntityType) ([]*types.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*types.Entity
	for k, e := range m.entities {
		if k.CatalogID == catalogID && e.ParentID == parentID && e.TypeCode == typeCode {
			result = append(result, cloneEntity(e))
		}
	}
	return result, nil
}

func (m *MemoryAtomicPersistence) HasChildren(cc *CallContext, optionalTypeCode types.EntityType, catalogID, parentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entities {
		if k.CatalogID != catalogID || e.ParentID != parentID {
			continue
		}
		if optionalTypeCode != "" && e.TypeCode != optionalTypeCode {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *MemoryAtomicPersistence) LookupEntityVersions(cc *CallContext, keys []EntityKey) (map[EntityKey]EntityVersions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[EntityKey]EntityVersions, len(keys))
	for _, k := range keys {
		if e, ok := m.entities[k]; ok {
			result[k] = EntityVersions{EntityVersion: e.EntityVersion, GrantRecordsVersion: e.GrantRecordsVersion}
		}
	}
	return result, nil
}

func (m *MemoryAtomicPersistence) LookupEntityGrantRecordsVersion(cc *CallContext, catalogID, id string) (int64, error) {
	e, err := m.LookupEntity(cc, catalogID, id, "")
	if err != nil {
		return 0, err
	}
	return e.GrantRecordsVersion, nil
}

func (m *MemoryAtomicPersistence) WriteToGrantRecords(cc *CallContext, record types.GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[record.Key()] = record
	return nil
}

func (m *MemoryAtomicPersistence) DeleteFromGrantRecords(cc *CallContext, record types.GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, record.Key())
	return nil
}

func (m *MemoryAtomicPersistence) DeleteAllEntityGrantRecords(cc *CallContext, entity *types.Entity, onGrantee, onSecurable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.grants {
		if onSecurable && r.SecurableCatalogID == entity.CatalogID && r.SecurableID == entity.ID {
			delete(m.grants, key)
			continue
		}
		if onGrantee && r.GranteeCatalogID == entity.CatalogID && r.GranteeID == entity.ID {
			delete(m.grants, key)
		}
	}
	return nil
}

func (m *MemoryAtomicPersistence) LoadAllGrantRecordsOnGrantee(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.GrantRecord
	for _, r := range m.grants {
		if r.GranteeCatalogID == catalogID && r.GranteeID == id {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemoryAtomicPersistence) LoadAllGrantRecordsOnSecurable(cc *CallContext, catalogID, id string) ([]types.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.GrantRecord
	for _, r := range m.grants {
		if r.SecurableCatalogID == catalogID && r.SecurableID == id {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemoryAtomicPersistence) LookupGrantRecord(cc *CallContext, securableCatalogID, securableID, granteeCatalogID, granteeID string, priv types.PrivilegeCode) (*types.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := types.GrantRecord{SecurableCatalogID: securableCatalogID, SecurableID: securableID, GranteeCatalogID: granteeCatalogID, GranteeID: granteeID, PrivilegeCode: priv}.Key()
	r, ok := m.grants[key]
	if !ok {
		return nil, fmt.Errorf("grant record: %w", ErrNotFound)
	}
	return &r, nil
}

func randomHexMem(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (m *MemoryAtomicPersistence) LoadPrincipalSecrets(cc *CallContext, clientID string) (*types.PrincipalSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[clientID]
	if !ok {
		return nil, fmt.Errorf("principal secret %s: %w", clientID, ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (m *MemoryAtomicPersistence) GenerateNewPrincipalSecrets(cc *CallContext, principalName, principalID string) (*types.PrincipalSecretCredentials, error) {
	clientID, err := randomHexMem(16)
	if err != nil {
		return nil, err
	}
	mainSecret, err := randomHexMem(32)
	if err != nil {
		return nil, err
	}
	secondarySecret, err := randomHexMem(32)
	if err != nil {
		return nil, err
	}
	stored := &types.PrincipalSecret{
		ClientID:            clientID,
		MainSecretHash:      hashSecret(mainSecret),
		SecondarySecretHash: hashSecret(secondarySecret),
		PrincipalID:         principalID,
	}
	m.mu.Lock()
	m.secrets[clientID] = stored
	m.mu.Unlock()
	return &types.PrincipalSecretCredentials{
		ClientID:        clientID,
		PrincipalID:     principalID,
		MainSecret:      mainSecret,
		SecondarySecret: secondarySecret,
	}, nil
}

func (m *MemoryAtomicPersistence) RotatePrincipalSecrets(cc *CallContext, clientID, principalID string, reset bool, oldSecretHash string) (*types.PrincipalSecretCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.secrets[clientID]
	if !ok {
		return nil, fmt.Errorf("principal secret %s: %w", clientID, ErrNotFound)
	}
	if oldSecretHash != "" && stored.MainSecretHash != oldSecretHash && stored.SecondarySecretHash != oldSecretHash {
		return nil, &RetryOnConcurrencyError{Reason: "old secret hash does not match stored secret"}
	}
	newMain, err := randomHexMem(32)
	if err != nil {
		return nil, err
	}
	stored.SecondarySecretHash = stored.MainSecretHash
	stored.MainSecretHash = hashSecret(newMain)
	return &types.PrincipalSecretCredentials{ClientID: clientID, PrincipalID: principalID, MainSecret: newMain}, nil
}

func (m *MemoryAtomicPersistence) DeletePrincipalSecrets(cc *CallContext, clientID, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, clientID)
	return nil
}

func (m *MemoryAtomicPersistence) CreateStorageIntegration(cc *CallContext, catalogID, entityID, config string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageInt[EntityKey{CatalogID: catalogID, ID: entityID}] = config
	return nil
}

func (m *MemoryAtomicPersistence) PersistStorageIntegrationIfNeeded(cc *CallContext, entity *types.Entity, config string) error {
	if config == "" {
		return nil
	}
	return m.CreateStorageIntegration(cc, entity.CatalogID, entity.ID, config)
}

func (m *MemoryAtomicPersistence) LoadStorageIntegration(cc *CallContext, entity *types.Entity) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	config, ok := m.storageInt[EntityKey{CatalogID: entity.CatalogID, ID: entity.ID}]
	return config, ok, nil
}

func (m *MemoryAtomicPersistence) DeleteAll(cc *CallContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[EntityKey]*types.Entity)
	m.activeNames = make(map[string]string)
	m.grants = make(map[[5]string]types.GrantRecord)
	m.secrets = make(map[string]*types.PrincipalSecret)
	m.storageInt = make(map[EntityKey]string)
	return nil
}

var _ AtomicPersistence = (*MemoryAtomicPersistence)(nil)
