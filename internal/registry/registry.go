// Package registry holds the server's in-memory directory of clients and
// rooms. One reader/writer lock guards the whole registry; callers take it
// in the mode their operation needs and every method below states which
// mode it assumes. The lock is exposed rather than hidden because the
// command handlers compose several registry steps under a single critical
// section.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrRoomsExhausted is returned when creating a room would exceed the
// channel cap.
var ErrRoomsExhausted = errors.New("registry: channel limit reached")

// Client is one registered chat participant.
type Client struct {
	// Handle is the client's stable identity (its process id).
	Handle int
	// ReplyID is the mailbox id of the client's private reply queue.
	ReplyID string
	// Channel is the room the client is joined to, empty when none.
	Channel string
	// LastActive is refreshed on every command the router sees.
	LastActive time.Time
}

// Room is one named channel and its ordered member list.
type Room struct {
	Name    string
	Members []int
}

// Registry is the table of clients and rooms.
type Registry struct {
	mu sync.RWMutex

	maxClients  int
	maxChannels int
	defaultRoom string

	clients map[int]*Client
	rooms   map[string]*Room
}

// New creates a registry seeded with the default channel, which is never
// destroyed.
func New(maxClients, maxChannels int, defaultChannel string) *Registry {
	r := &Registry{
		maxClients:  maxClients,
		maxChannels: maxChannels,
		defaultRoom: defaultChannel,
		clients:     make(map[int]*Client, maxClients),
		rooms:       make(map[string]*Room, maxChannels),
	}
	r.rooms[defaultChannel] = &Room{Name: defaultChannel}
	return r
}

// Lock / Unlock take and release the registry in exclusive mode.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// RLock / RUnlock take and release the registry in shared mode.
func (r *Registry) RLock()   { r.mu.RLock() }
func (r *Registry) RUnlock() { r.mu.RUnlock() }

// DefaultChannel returns the seeded channel name.
func (r *Registry) DefaultChannel() string { return r.defaultRoom }

// Client looks up a client by handle. Caller holds the lock (any mode).
func (r *Registry) Client(handle int) (*Client, bool) {
	c, ok := r.clients[handle]
	return c, ok
}

// Room looks up a room by name. Caller holds the lock (any mode).
func (r *Registry) Room(name string) (*Room, bool) {
	room, ok := r.rooms[name]
	return room, ok
}

// ClientCount returns the number of registered clients. Caller holds the
// lock (any mode).
func (r *Registry) ClientCount() int { return len(r.clients) }

// RoomCount returns the number of rooms, default channel included. Caller
// holds the lock (any mode).
func (r *Registry) RoomCount() int { return len(r.rooms) }

// Handles returns all registered handles in ascending order. Caller holds
// the lock (any mode).
func (r *Registry) Handles() []int {
	handles := make([]int, 0, len(r.clients))
	for h := range r.clients {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	return handles
}

// AddClient registers a new client. It returns false when the client table
// is full. Re-registering a known handle refreshes its reply queue and
// timestamp instead of occupying a second slot. Caller holds the exclusive
// lock.
func (r *Registry) AddClient(handle int, replyID string, now time.Time) bool {
	if c, ok := r.clients[handle]; ok {
		c.ReplyID = replyID
		c.LastActive = now
		return true
	}
	if len(r.clients) >= r.maxClients {
		return false
	}
	r.clients[handle] = &Client{
		Handle:     handle,
		ReplyID:    replyID,
		LastActive: now,
	}
	return true
}

// Touch refreshes a client's last-active timestamp, ignoring unknown
// handles. Caller holds the exclusive lock.
func (r *Registry) Touch(handle int, now time.Time) {
	if c, ok := r.clients[handle]; ok {
		c.LastActive = now
	}
}

// EnsureRoom returns the named room, creating it when absent. The second
// result reports whether the room was created; ErrRoomsExhausted is
// returned when creation would exceed the channel cap. Caller holds the
// exclusive lock.
func (r *Registry) EnsureRoom(name string) (*Room, bool, error) {
	if room, ok := r.rooms[name]; ok {
		return room, false, nil
	}
	if len(r.rooms) >= r.maxChannels {
		return nil, false, ErrRoomsExhausted
	}
	room := &Room{Name: name}
	r.rooms[name] = room
	return room, true, nil
}

// AddMember adds the client to the room's member list; a no-op if already
// present. Membership is capped by the client table size. Caller holds the
// exclusive lock.
func (r *Registry) AddMember(room *Room, handle int) {
	for _, m := range room.Members {
		if m == handle {
			return
		}
	}
	if len(room.Members) >= r.maxClients {
		return
	}
	room.Members = append(room.Members, handle)
}

// RemoveMember removes the client from the named room, destroying the room
// when it empties and is not the default channel. It reports whether the
// room was reaped. Caller holds the exclusive lock.
func (r *Registry) RemoveMember(name string, handle int) (reaped bool) {
	room, ok := r.rooms[name]
	if !ok {
		return false
	}
	for i, m := range room.Members {
		if m == handle {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}
	if len(room.Members) == 0 && name != r.defaultRoom {
		delete(r.rooms, name)
		return true
	}
	return false
}

// Departure describes a client removal, for the caller to broadcast.
type Departure struct {
	Handle  int
	Channel string
	// RoomReaped is set when the departure emptied a non-default room.
	RoomReaped bool
}

// RemoveClient removes the client from its room (possibly reaping it) and
// clears its slot. The returned Departure has a non-empty Channel when the
// client was in one. The second result is false for unknown handles.
// Caller holds the exclusive lock.
func (r *Registry) RemoveClient(handle int) (Departure, bool) {
	c, ok := r.clients[handle]
	if !ok {
		return Departure{}, false
	}
	dep := Departure{Handle: handle, Channel: c.Channel}
	if c.Channel != "" {
		dep.RoomReaped = r.RemoveMember(c.Channel, handle)
	}
	delete(r.clients, handle)
	return dep, true
}
