package objgraph

import (
	"slices"
	"sync"
)

// StorageSlot is one entry of a StorageMapping.
type StorageSlot struct {
	Name    string
	Index   int
	Kind    Kind
	Default Value
	// Valid is false once the property disappeared from the type. The index
	// stays reserved so existing instance storage never renumbers.
	Valid bool
}

// StorageMapping maps property names of one type to storage slots. Slots are
// append-only: redefinitions add entries or tombstone old ones.
type StorageMapping struct {
	typ *Type

	mu         sync.RWMutex
	revisions  []uint64
	generation uint64
	slots      []StorageSlot
	byName     map[string]int
}

var mappingCache = struct {
	sync.RWMutex
	byType map[*Type]*StorageMapping
}{byType: make(map[*Type]*StorageMapping)}

// MappingFor returns the shared mapping for t, building it on first use and
// resyncing it when t or one of its parents was redefined.
func MappingFor(t *Type) *StorageMapping {
	mappingCache.RLock()
	m, ok := mappingCache.byType[t]
	mappingCache.RUnlock()
	if !ok {
		mappingCache.Lock()
		if m, ok = mappingCache.byType[t]; !ok {
			m = &StorageMapping{typ: t, byName: make(map[string]int)}
			mappingCache.byType[t] = m
		}
		mappingCache.Unlock()
	}
	m.refresh()
	return m
}

func forgetMapping(t *Type) {
	mappingCache.Lock()
	delete(mappingCache.byType, t)
	mappingCache.Unlock()
}

func (m *StorageMapping) refresh() {
	current := m.typ.revisions()
	m.mu.RLock()
	fresh := slices.Equal(current, m.revisions)
	m.mu.RUnlock()
	if fresh {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Equal(current, m.revisions) {
		return
	}
	seen := make(map[string]bool)
	for _, prop := range m.typ.AllProperties() {
		kind := prop.storageKind()
		if kind == KindInvalid || seen[prop.Name] {
			continue
		}
		seen[prop.Name] = true
		slot := StorageSlot{Name: prop.Name, Kind: kind, Default: prop.storageDefault(), Valid: true}
		if idx, ok := m.byName[prop.Name]; ok {
			slot.Index = idx
			m.slots[idx] = slot
			continue
		}
		slot.Index = len(m.slots)
		m.byName[prop.Name] = slot.Index
		m.slots = append(m.slots, slot)
	}
	for i := range m.slots {
		if !seen[m.slots[i].Name] {
			m.slots[i].Valid = false
		}
	}
	m.revisions = current
	m.generation++
}

// Type returns the mapped type.
func (m *StorageMapping) Type() *Type { return m.typ }

// Generation increments every time the slot table changes.
func (m *StorageMapping) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Len returns the number of slots including tombstones.
func (m *StorageMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

// Lookup returns the live slot for name.
func (m *StorageMapping) Lookup(name string) (StorageSlot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byName[name]
	if !ok || !m.slots[idx].Valid {
		return StorageSlot{}, false
	}
	return m.slots[idx], true
}

// Slots returns a copy of the slot table ordered by index.
func (m *StorageMapping) Slots() []StorageSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StorageSlot(nil), m.slots...)
}
