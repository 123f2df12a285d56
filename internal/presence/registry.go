// Package presence owns the in-memory mapping of connections to peers and
// rooms to member sets. The Registry is the only shared mutable state of
// the signaling plane; every public operation is atomic under one mutex and
// performs no I/O, so it can never block a connection actor for long.
package presence

import (
	"errors"
	"sync"
)

// Errors returned by Admit. TenantMismatch wins over RoomFull when both
// apply: it signals a credential problem, not a capacity one.
var (
	ErrInternal        = errors.New("no peer record for connection")
	ErrAlreadyAdmitted = errors.New("connection already admitted to a room")
	ErrTenantMismatch  = errors.New("room belongs to another app")
	ErrRoomFull        = errors.New("room is full")
	ErrDuplicateConn   = errors.New("connection already registered")
)

// DefaultRoomCap seats two peers, the MVP call size.
const DefaultRoomCap = 2

// Peer is a connection's presence projection. RoomID, UserID and AppID are
// empty until the peer is admitted.
type Peer struct {
	ConnID string
	RoomID string
	UserID string
	AppID  string
}

// Admitted reports whether the peer currently sits in a room.
func (p *Peer) Admitted() bool { return p.RoomID != "" }

// roomEntry exists only while the room has members. AppID is pinned by the
// first admission and every later member must match it.
type roomEntry struct {
	appID   string
	cap     int
	members map[string]struct{} // connection ids
}

// Registry maps connections to peers (forward index) and rooms to member
// sets (reverse index). The two indices change together or not at all.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer      // connID -> peer
	rooms map[string]*roomEntry // roomID -> entry
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
		rooms: make(map[string]*roomEntry),
	}
}

// Register creates an unadmitted peer record. Registering the same
// connection twice is a programming error.
func (r *Registry) Register(connID string) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[connID]; exists {
		return nil, ErrDuplicateConn
	}
	peer := &Peer{ConnID: connID}
	r.peers[connID] = peer
	return peer, nil
}

// Admit moves the peer into roomID and returns the connection ids that were
// already members, in no particular order. capHint sizes a room created by
// this admission; values < 1 fall back to DefaultRoomCap. An existing
// room's pinned cap and app id always win over the hints.
func (r *Registry) Admit(connID, roomID, userID, appID string, capHint int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[connID]
	if !ok {
		return nil, ErrInternal
	}
	if peer.Admitted() {
		return nil, ErrAlreadyAdmitted
	}

	entry, exists := r.rooms[roomID]
	if exists {
		if entry.appID != appID {
			return nil, ErrTenantMismatch
		}
		if len(entry.members) >= entry.cap {
			return nil, ErrRoomFull
		}
	} else {
		if capHint < 1 {
			capHint = DefaultRoomCap
		}
		entry = &roomEntry{appID: appID, cap: capHint, members: make(map[string]struct{})}
		r.rooms[roomID] = entry
	}

	existing := make([]string, 0, len(entry.members))
	for id := range entry.members {
		existing = append(existing, id)
	}

	entry.members[connID] = struct{}{}
	peer.RoomID = roomID
	peer.UserID = userID
	peer.AppID = appID

	return existing, nil
}

// Leave removes the peer from its room and resets its admission state.
// Returns the room id and the remaining member connection ids, or ok=false
// when the peer was not admitted.
func (r *Registry) Leave(connID string) (roomID string, remaining []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) (string, []string, bool) {
	peer, exists := r.peers[connID]
	if !exists || !peer.Admitted() {
		return "", nil, false
	}

	roomID := peer.RoomID
	peer.RoomID = ""
	peer.UserID = ""
	peer.AppID = ""

	entry, exists := r.rooms[roomID]
	if !exists {
		// Room vanished out from under the peer; nothing to notify.
		return "", nil, false
	}

	delete(entry.members, connID)
	if len(entry.members) == 0 {
		delete(r.rooms, roomID)
		return roomID, nil, true
	}

	remaining := make([]string, 0, len(entry.members))
	for id := range entry.members {
		remaining = append(remaining, id)
	}
	return roomID, remaining, true
}

// DropConnection performs Leave and deletes the peer record. userID is the
// identity the peer held while admitted, for peer-left notifications.
func (r *Registry) DropConnection(connID string) (roomID string, remaining []string, userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if peer, exists := r.peers[connID]; exists {
		userID = peer.UserID
	}
	roomID, remaining, ok = r.leaveLocked(connID)
	delete(r.peers, connID)
	return roomID, remaining, userID, ok
}

// PeersOf returns the connection ids of every other member in the caller's
// room, or nil when the caller is not admitted.
func (r *Registry) PeersOf(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[connID]
	if !exists || !peer.Admitted() {
		return nil
	}
	entry, exists := r.rooms[peer.RoomID]
	if !exists {
		return nil
	}

	out := make([]string, 0, len(entry.members)-1)
	for id := range entry.members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// UsersOf returns a snapshot of the user ids currently in roomID.
func (r *Registry) UsersOf(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.rooms[roomID]
	if !exists {
		return nil
	}

	out := make([]string, 0, len(entry.members))
	for id := range entry.members {
		if peer, ok := r.peers[id]; ok {
			out = append(out, peer.UserID)
		}
	}
	return out
}

// Lookup returns a copy of the peer record for connID.
func (r *Registry) Lookup(connID string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[connID]
	if !exists {
		return Peer{}, false
	}
	return *peer, true
}

// Rooms reports the number of live room entries.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Connections reports the number of registered peers.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
