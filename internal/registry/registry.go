package registry

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"arena/server/internal/world"
)

// ErrDuplicateConnection is returned when a connection is added twice.
var ErrDuplicateConnection = errors.New("registry: connection already registered")

// Conn is the part of a client connection the registry needs: a stable key
// and a non-blocking way to hand it an encoded message.
type Conn interface {
	ID() uuid.UUID
	Send(data []byte) error
}

// Entry pairs a connection with the player it owns. The Player pointer is
// only valid inside the transaction that produced it.
type Entry struct {
	Conn   Conn
	Player *world.Player
}

// Member is a detached copy of an entry, safe to use outside the lock.
type Member struct {
	Conn   Conn
	Status world.Status
}

type record struct {
	conn   Conn
	player *world.Player
}

// Registry maps live connections to their players. Every read and write goes
// through a single reader/writer lock; iteration order is join order.
type Registry struct {
	mu      deadlock.RWMutex
	records map[uuid.UUID]*record
	order   []uuid.UUID
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{records: make(map[uuid.UUID]*record)}
}

// DetectDeadlocks toggles lock-order and timeout checks on registry locks.
// It must be called before any registry is in use.
func DetectDeadlocks(enabled bool, timeout time.Duration, out io.Writer, onDeadlock func()) {
	deadlock.Opts.Disable = !enabled
	if timeout > 0 {
		deadlock.Opts.DeadlockTimeout = timeout
	}
	if out != nil {
		deadlock.Opts.LogBuf = out
	}
	if onDeadlock != nil {
		deadlock.Opts.OnPotentialDeadlock = onDeadlock
	}
}

// Do runs fn with exclusive access to the registry. No other add, remove,
// snapshot or transaction can interleave with fn.
func (r *Registry) Do(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// Add inserts conn with its player.
func (r *Registry) Add(conn Conn, player *world.Player) error {
	var err error
	r.Do(func(tx *Tx) {
		err = tx.Add(conn, player)
	})
	return err
}

// Remove deletes conn and returns the player it owned. The second result is
// false when conn was not registered, e.g. on a repeated remove.
func (r *Registry) Remove(id uuid.UUID) (*world.Player, bool) {
	var (
		player *world.Player
		ok     bool
	)
	r.Do(func(tx *Tx) {
		player, ok = tx.Remove(id)
	})
	return player, ok
}

// Snapshot returns a point-in-time copy of all members in join order.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		members = append(members, Member{Conn: rec.conn, Status: rec.player.Status()})
	}
	return members
}

// Connections returns a point-in-time copy of the registered connections in
// join order.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectionsLocked()
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Empty reports whether there is nobody to broadcast to.
func (r *Registry) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

func (r *Registry) connectionsLocked() []Conn {
	conns := make([]Conn, 0, len(r.order))
	for _, id := range r.order {
		conns = append(conns, r.records[id].conn)
	}
	return conns
}

// Tx is the view of the registry handed to Do. It must not escape fn.
type Tx struct {
	r *Registry
}

// Add inserts conn with its player.
func (tx *Tx) Add(conn Conn, player *world.Player) error {
	id := conn.ID()
	if _, exists := tx.r.records[id]; exists {
		return ErrDuplicateConnection
	}
	tx.r.records[id] = &record{conn: conn, player: player}
	tx.r.order = append(tx.r.order, id)
	return nil
}

// Remove deletes id and returns its player.
func (tx *Tx) Remove(id uuid.UUID) (*world.Player, bool) {
	rec, ok := tx.r.records[id]
	if !ok {
		return nil, false
	}
	delete(tx.r.records, id)
	for i, candidate := range tx.r.order {
		if candidate == id {
			tx.r.order = append(tx.r.order[:i], tx.r.order[i+1:]...)
			break
		}
	}
	return rec.player, true
}

// Player returns the player registered for id.
func (tx *Tx) Player(id uuid.UUID) (*world.Player, bool) {
	rec, ok := tx.r.records[id]
	if !ok {
		return nil, false
	}
	return rec.player, true
}

// Entries returns every entry in join order.
func (tx *Tx) Entries() []Entry {
	entries := make([]Entry, 0, len(tx.r.order))
	for _, id := range tx.r.order {
		rec := tx.r.records[id]
		entries = append(entries, Entry{Conn: rec.conn, Player: rec.player})
	}
	return entries
}

// Players returns every player in join order.
func (tx *Tx) Players() []*world.Player {
	players := make([]*world.Player, 0, len(tx.r.order))
	for _, id := range tx.r.order {
		players = append(players, tx.r.records[id].player)
	}
	return players
}

// Connections returns every connection in join order.
func (tx *Tx) Connections() []Conn {
	return tx.r.connectionsLocked()
}

// HasName reports whether a player with the given name is registered.
func (tx *Tx) HasName(name string) bool {
	for _, rec := range tx.r.records {
		if rec.player.Name() == name {
			return true
		}
	}
	return false
}

// Len reports the number of registered connections.
func (tx *Tx) Len() int {
	return len(tx.r.order)
}
