package session

import (
	"sort"
	"sync"
)

// EntityClass separates the two id spaces.
type EntityClass uint8

const (
	EntityCelestialObject EntityClass = iota
	EntityPart
)

func (c EntityClass) String() string {
	switch c {
	case EntityCelestialObject:
		return "celestial_object"
	case EntityPart:
		return "part"
	default:
		return "unknown"
	}
}

type entityKey struct {
	class EntityClass
	id    uint32
}

// EntityLedger records which ids one connection has announced. It is read
// from status handlers while the connection goroutine writes it.
type EntityLedger struct {
	mu    sync.RWMutex
	items map[entityKey]struct{}
}

func NewEntityLedger() *EntityLedger {
	return &EntityLedger{items: make(map[entityKey]struct{})}
}

func (l *EntityLedger) Announce(class EntityClass, id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[entityKey{class: class, id: id}] = struct{}{}
}

func (l *EntityLedger) Has(class EntityClass, id uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.items[entityKey{class: class, id: id}]
	return ok
}

func (l *EntityLedger) Count(class EntityClass) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for k := range l.items {
		if k.class == class {
			n++
		}
	}
	return n
}

// IDs lists the announced ids of one class in ascending order.
func (l *EntityLedger) IDs(class EntityClass) []uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]uint32, 0, len(l.items))
	for k := range l.items {
		if k.class == class {
			out = append(out, k.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
