// Package syncpoint implements monotonic completion counters ("syncpoints")
// with blocking waits and threshold callbacks.
//
// Two independent namespaces exist: the guest domain, advanced on behalf of
// the emulated program, and the host domain, advanced by host-side backends.
// Counters live as long as the Manager; actions are created on registration
// and disappear when they fire or are deregistered.
package syncpoint

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// MaxSyncpoints is the number of counters per domain.
const MaxSyncpoints = 192

// Domain selects one of the two counter namespaces.
type Domain int

const (
	Guest Domain = iota
	Host
)

func (d Domain) String() string {
	switch d {
	case Guest:
		return "guest"
	case Host:
		return "host"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

// ActionHandle identifies a registered action for DeregisterAction.
// The zero handle is returned for actions that fired during registration;
// deregistering it is a no-op.
type ActionHandle struct {
	id uint64
}

// Valid reports whether the handle refers to a queued action.
func (h ActionHandle) Valid() bool {
	return h.id != 0
}

type registeredAction struct {
	expected uint32
	id       uint64
	action   func()
}

type domainState struct {
	values  [MaxSyncpoints]atomic.Uint32
	actions [MaxSyncpoints][]registeredAction
	cond    *sync.Cond
}

// Manager owns the guest and host counters.
//
// Thread safety: all methods are safe for concurrent use. Actions run on the
// goroutine that satisfies them (Increment or RegisterAction) while the
// manager lock is held, so an action must not call back into the Manager.
type Manager struct {
	guard   sync.Mutex
	domains [2]domainState
	nextID  uint64
}

// NewManager creates a Manager with every counter at zero.
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.domains {
		m.domains[i].cond = sync.NewCond(&m.guard)
	}
	return m
}

func (m *Manager) domain(d Domain, id uint32) *domainState {
	if d != Guest && d != Host {
		panic(fmt.Sprintf("syncpoint: invalid domain %d", int(d)))
	}
	if id >= MaxSyncpoints {
		panic(fmt.Sprintf("syncpoint: id %d out of range", id))
	}
	return &m.domains[d]
}

// Value returns the current counter value.
func (m *Manager) Value(d Domain, id uint32) uint32 {
	return m.domain(d, id).values[id].Load()
}

// Increment adds one to the counter, runs every action whose threshold is
// now reached (ascending by threshold) and wakes all waiters.
// Returns the new counter value.
func (m *Manager) Increment(d Domain, id uint32) uint32 {
	ds := m.domain(d, id)
	newValue := ds.values[id].Add(1)

	m.guard.Lock()
	defer m.guard.Unlock()

	pending := ds.actions[id]
	n := 0
	for n < len(pending) && pending[n].expected <= newValue {
		pending[n].action()
		n++
	}
	if n > 0 {
		clear(pending[:n])
		ds.actions[id] = pending[n:]
	}
	ds.cond.Broadcast()
	return newValue
}

// Wait blocks until the counter reaches expected.
// There is no timeout: if nothing ever increments the counter far enough the
// caller blocks forever.
func (m *Manager) Wait(d Domain, id uint32, expected uint32) {
	ds := m.domain(d, id)
	if ds.values[id].Load() >= expected {
		return
	}

	m.guard.Lock()
	for ds.values[id].Load() < expected {
		ds.cond.Wait()
	}
	m.guard.Unlock()
}

// WaitContext is Wait that returns ctx.Err() when ctx ends first.
func (m *Manager) WaitContext(ctx context.Context, d Domain, id uint32, expected uint32) error {
	ds := m.domain(d, id)
	if ds.values[id].Load() >= expected {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		m.guard.Lock()
		ds.cond.Broadcast()
		m.guard.Unlock()
	})
	defer stop()

	m.guard.Lock()
	defer m.guard.Unlock()
	for ds.values[id].Load() < expected {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds.cond.Wait()
	}
	return nil
}

// RegisterAction arranges for action to run once the counter reaches
// expected. If it already has, action runs before RegisterAction returns and
// the zero handle is returned. Otherwise the action is queued behind every
// action with a lower or equal threshold.
func (m *Manager) RegisterAction(d Domain, id uint32, expected uint32, action func()) ActionHandle {
	ds := m.domain(d, id)
	if ds.values[id].Load() >= expected {
		action()
		return ActionHandle{}
	}

	m.guard.Lock()
	defer m.guard.Unlock()

	// an increment may have landed between the fast check and the lock
	if ds.values[id].Load() >= expected {
		action()
		return ActionHandle{}
	}

	m.nextID++
	entry := registeredAction{expected: expected, id: m.nextID, action: action}

	pending := ds.actions[id]
	pos, _ := slices.BinarySearchFunc(pending, expected, func(a registeredAction, target uint32) int {
		if a.expected <= target {
			return -1
		}
		return 1
	})
	ds.actions[id] = slices.Insert(pending, pos, entry)

	return ActionHandle{id: entry.id}
}

// DeregisterAction drops a queued action. It is a no-op if the action has
// already fired or the handle is the zero handle.
func (m *Manager) DeregisterAction(d Domain, id uint32, handle ActionHandle) {
	ds := m.domain(d, id)
	if !handle.Valid() {
		return
	}

	m.guard.Lock()
	defer m.guard.Unlock()

	pending := ds.actions[id]
	if i := slices.IndexFunc(pending, func(a registeredAction) bool { return a.id == handle.id }); i >= 0 {
		ds.actions[id] = slices.Delete(pending, i, i+1)
	}
}

// Pending returns the number of queued actions for a counter.
func (m *Manager) Pending(d Domain, id uint32) int {
	ds := m.domain(d, id)
	m.guard.Lock()
	defer m.guard.Unlock()
	return len(ds.actions[id])
}

func (m *Manager) IncrementGuest(id uint32) uint32 { return m.Increment(Guest, id) }
func (m *Manager) IncrementHost(id uint32) uint32  { return m.Increment(Host, id) }

func (m *Manager) WaitGuest(id, expected uint32) { m.Wait(Guest, id, expected) }
func (m *Manager) WaitHost(id, expected uint32)  { m.Wait(Host, id, expected) }

func (m *Manager) GuestValue(id uint32) uint32 { return m.Value(Guest, id) }
func (m *Manager) HostValue(id uint32) uint32  { return m.Value(Host, id) }

func (m *Manager) RegisterGuestAction(id, expected uint32, action func()) ActionHandle {
	return m.RegisterAction(Guest, id, expected, action)
}

func (m *Manager) RegisterHostAction(id, expected uint32, action func()) ActionHandle {
	return m.RegisterAction(Host, id, expected, action)
}

func (m *Manager) DeregisterGuestAction(id uint32, handle ActionHandle) {
	m.DeregisterAction(Guest, id, handle)
}

func (m *Manager) DeregisterHostAction(id uint32, handle ActionHandle) {
	m.DeregisterAction(Host, id, handle)
}
