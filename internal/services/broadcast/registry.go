package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/BearBump/LiveTrace/internal/models"
)

// Conn is a live subscriber. Send must not block: implementations queue the
// event and return an error when it cannot be queued.
type Conn interface {
	ID() string
	UserID() string
	Role() string
	Send(ev models.Event) error
}

type members map[string]Conn

type snapshot struct {
	channels map[string]members             // channel -> conn id -> conn
	joined   map[string]map[string]struct{} // conn id -> channels

	// inner maps already cloned during the current update
	copied map[string]bool
}

func (s *snapshot) add(channel string, c Conn) {
	m := s.ownChannel(channel)
	m[c.ID()] = c
	j := s.ownJoined(c.ID())
	j[channel] = struct{}{}
}

func (s *snapshot) remove(channel, connID string) {
	if _, ok := s.channels[channel][connID]; ok {
		m := s.ownChannel(channel)
		delete(m, connID)
		if len(m) == 0 {
			delete(s.channels, channel)
		}
	}
	if _, ok := s.joined[connID][channel]; ok {
		j := s.ownJoined(connID)
		delete(j, channel)
		if len(j) == 0 {
			delete(s.joined, connID)
		}
	}
}

func (s *snapshot) ownChannel(channel string) members {
	key := "c|" + channel
	if !s.copied[key] {
		m := make(members, len(s.channels[channel])+1)
		for k, v := range s.channels[channel] {
			m[k] = v
		}
		s.channels[channel] = m
		s.copied[key] = true
	}
	return s.channels[channel]
}

func (s *snapshot) ownJoined(connID string) map[string]struct{} {
	key := "j|" + connID
	if !s.copied[key] {
		j := make(map[string]struct{}, len(s.joined[connID])+1)
		for k := range s.joined[connID] {
			j[k] = struct{}{}
		}
		s.joined[connID] = j
		s.copied[key] = true
	}
	return s.joined[connID]
}

// Registry maps channels to connections. Reads go through an immutable
// snapshot swapped atomically on every write.
type Registry struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{
		channels: map[string]members{},
		joined:   map[string]map[string]struct{}{},
	})
	return r
}

// Register joins a fresh connection to its user, role and global channels.
func (r *Registry) Register(c Conn) {
	chans := []string{GlobalChannel}
	if c.UserID() != "" {
		chans = append(chans, UserChannel(c.UserID()))
	}
	if c.Role() != "" {
		chans = append(chans, RoleChannel(c.Role()))
	}
	r.update(func(s *snapshot) {
		for _, ch := range chans {
			s.add(ch, c)
		}
	})
}

func (r *Registry) Join(c Conn, channel string) {
	r.update(func(s *snapshot) { s.add(channel, c) })
}

func (r *Registry) Leave(c Conn, channel string) {
	r.update(func(s *snapshot) { s.remove(channel, c.ID()) })
}

// Disconnect drops every membership of the connection.
func (r *Registry) Disconnect(c Conn) {
	r.update(func(s *snapshot) {
		for ch := range s.joined[c.ID()] {
			s.remove(ch, c.ID())
		}
		delete(s.joined, c.ID())
	})
}

// Members returns the connections currently joined to channel.
func (r *Registry) Members(channel string) []Conn {
	m := r.snap.Load().channels[channel]
	out := make([]Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// Channels returns the channels a connection is joined to.
func (r *Registry) Channels(connID string) []string {
	j := r.snap.Load().joined[connID]
	out := make([]string, 0, len(j))
	for ch := range j {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) Connections() int {
	return len(r.snap.Load().joined)
}

// update copies the maps touched by fn; untouched inner maps are shared
// with the previous snapshot, which is never mutated.
func (r *Registry) update(fn func(s *snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	next := &snapshot{
		channels: make(map[string]members, len(old.channels)),
		joined:   make(map[string]map[string]struct{}, len(old.joined)),
	}
	for k, v := range old.channels {
		next.channels[k] = v
	}
	for k, v := range old.joined {
		next.joined[k] = v
	}
	next.copied = map[string]bool{}
	fn(next)
	next.copied = nil
	r.snap.Store(next)
}
