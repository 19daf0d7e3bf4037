package skeleton

import (
	"fmt"
	"sort"
	"sync"
)

// Table is a concurrency-safe snapshot of the joints of every person in the
// latest frame. The device driver replaces the snapshot as frames arrive and
// the monitor loop samples from it.
type Table struct {
	mu     sync.RWMutex
	people map[PersonID]map[Joint]Position
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{people: make(map[PersonID]map[Joint]Position)}
}

// Replace swaps in the joints for a new frame. People absent from people are
// no longer tracked.
func (t *Table) Replace(people map[PersonID]map[Joint]Position) {
	if people == nil {
		people = make(map[PersonID]map[Joint]Position)
	}
	t.mu.Lock()
	t.people = people
	t.mu.Unlock()
}

// IDs returns the tracked person ids in ascending order.
func (t *Table) IDs() []PersonID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]PersonID, 0, len(t.people))
	for id := range t.people {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Joint implements Sampler.
func (t *Table) Joint(id PersonID, joint Joint) (Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	joints, ok := t.people[id]
	if !ok {
		return Position{}, ErrNotTracked
	}
	p, ok := joints[joint]
	if !ok {
		return Position{}, ErrNotTracked
	}
	return p, nil
}

// Sample implements SnapshotSampler. All four joints come from the same
// frame because Replace swaps the whole snapshot under the write lock.
func (t *Table) Sample(id PersonID) (Sample, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	joints, ok := t.people[id]
	if !ok {
		return Sample{}, fmt.Errorf("sample person %d: %w", id, ErrNotTracked)
	}

	var out Sample
	for _, j := range MonitoredJoints {
		p, ok := joints[j]
		if !ok {
			return Sample{}, fmt.Errorf("sample %s of person %d: %w", j, id, ErrNotTracked)
		}
		out.set(j, p)
	}
	return out, nil
}
