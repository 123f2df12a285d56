package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("c1")
	require.NoError(t, err)

	_, err = r.Register("c1")
	assert.ErrorIs(t, err, ErrDuplicateConn)
}

func TestAdmitFirstPeerCreatesRoom(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("c1")
	require.NoError(t, err)

	existing, err := r.Admit("c1", "room", "alice", "app", 0)
	require.NoError(t, err)
	assert.Empty(t, existing)

	assert.Equal(t, 1, r.Rooms())
	assert.ElementsMatch(t, []string{"alice"}, r.UsersOf("room"))

	peer, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.True(t, peer.Admitted())
	assert.Equal(t, "room", peer.RoomID)
	assert.Equal(t, "app", peer.AppID)
}

func TestAdmitReturnsExistingMembers(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1", "c2")

	_, err := r.Admit("c1", "room", "alice", "app", 0)
	require.NoError(t, err)

	existing, err := r.Admit("c2", "room", "bob", "app", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, existing)

	assert.ElementsMatch(t, []string{"alice", "bob"}, r.UsersOf("room"))
	assert.ElementsMatch(t, []string{"c1"}, r.PeersOf("c2"))
	assert.ElementsMatch(t, []string{"c2"}, r.PeersOf("c1"))
}

func TestAdmitErrors(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1", "c2", "c3", "c4")

	_, err := r.Admit("unknown", "room", "x", "app", 0)
	assert.ErrorIs(t, err, ErrInternal)

	_, err = r.Admit("c1", "room", "alice", "app", 0)
	require.NoError(t, err)

	_, err = r.Admit("c1", "other", "alice", "app", 0)
	assert.ErrorIs(t, err, ErrAlreadyAdmitted)

	// Tenant mismatch wins over capacity.
	_, err = r.Admit("c2", "room", "bob", "app", 0)
	require.NoError(t, err)
	_, err = r.Admit("c3", "room", "eve", "other-app", 0)
	assert.ErrorIs(t, err, ErrTenantMismatch)

	_, err = r.Admit("c4", "room", "carol", "app", 0)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAdmitHonorsCapHint(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1", "c2", "c3", "c4")

	for i, conn := range []string{"c1", "c2", "c3"} {
		_, err := r.Admit(conn, "room", fmt.Sprintf("u%d", i), "app", 3)
		require.NoError(t, err)
	}

	_, err := r.Admit("c4", "room", "u4", "app", 3)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1", "c2")

	_, err := r.Admit("c1", "room", "alice", "app", 0)
	require.NoError(t, err)
	_, err = r.Admit("c2", "room", "bob", "app", 0)
	require.NoError(t, err)

	roomID, remaining, ok := r.Leave("c1")
	require.True(t, ok)
	assert.Equal(t, "room", roomID)
	assert.Equal(t, []string{"c2"}, remaining)
	assert.Equal(t, 1, r.Rooms())

	// Peer record survives a leave; it can join another room.
	peer, exists := r.Lookup("c1")
	require.True(t, exists)
	assert.False(t, peer.Admitted())

	_, remaining, ok = r.Leave("c2")
	require.True(t, ok)
	assert.Empty(t, remaining)
	assert.Zero(t, r.Rooms())
}

func TestLeaveUnadmittedIsNone(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1")

	_, _, ok := r.Leave("c1")
	assert.False(t, ok)
	_, _, ok = r.Leave("ghost")
	assert.False(t, ok)
}

func TestDropConnectionReportsUser(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "c1", "c2")

	_, err := r.Admit("c1", "room", "alice", "app", 0)
	require.NoError(t, err)
	_, err = r.Admit("c2", "room", "bob", "app", 0)
	require.NoError(t, err)

	roomID, remaining, userID, ok := r.DropConnection("c2")
	require.True(t, ok)
	assert.Equal(t, "room", roomID)
	assert.Equal(t, []string{"c1"}, remaining)
	assert.Equal(t, "bob", userID)

	_, exists := r.Lookup("c2")
	assert.False(t, exists)
	assert.Equal(t, 1, r.Connections())
}

// Two admissions racing for the last seat: exactly one wins.
func TestAdmitRaceForLastSeat(t *testing.T) {
	for i := 0; i < 200; i++ {
		r := NewRegistry()
		mustRegister(t, r, "seated", "a", "b")
		_, err := r.Admit("seated", "room", "host", "app", 0)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, conn := range []string{"a", "b"} {
			wg.Add(1)
			go func(conn string) {
				defer wg.Done()
				_, err := r.Admit(conn, "room", conn, "app", 0)
				results <- err
			}(conn)
		}
		wg.Wait()
		close(results)

		var wins, fulls int
		for err := range results {
			switch {
			case err == nil:
				wins++
			case err == ErrRoomFull:
				fulls++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, 1, fulls)
	}
}

// Hammer the registry from many goroutines and verify the indices stay
// mutually consistent.
func TestConcurrentChurnKeepsIndicesConsistent(t *testing.T) {
	r := NewRegistry()

	const workers = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", w)
			room := fmt.Sprintf("room-%d", w%4)
			for i := 0; i < 100; i++ {
				_, err := r.Register(conn)
				if err != nil {
					t.Errorf("register: %v", err)
					return
				}
				if _, err := r.Admit(conn, room, conn, "app", 8); err != nil {
					t.Errorf("admit: %v", err)
					return
				}
				r.PeersOf(conn)
				r.UsersOf(room)
				r.DropConnection(conn)
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, r.Connections())
	assert.Zero(t, r.Rooms())
}

func mustRegister(t *testing.T, r *Registry, conns ...string) {
	t.Helper()
	for _, c := range conns {
		_, err := r.Register(c)
		require.NoError(t, err)
	}
}
