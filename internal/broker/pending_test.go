package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPendingStore(t *testing.T, cfg Config) *PendingSessionStore {
	t.Helper()
	ps := NewPendingSessionStore(cfg)
	t.Cleanup(ps.Stop)
	return ps
}

func TestPendingSessionRoundTrip(t *testing.T) {
	ps := testPendingStore(t, DefaultConfig())

	id := ps.Create("client_a", "challenge", "http://localhost:8123/callback", "client-state")
	require.NotEmpty(t, id)

	sess := ps.Consume(id)
	require.NotNil(t, sess)
	assert.Equal(t, "client_a", sess.ClientID)
	assert.Equal(t, "challenge", sess.CodeChallenge)
	assert.Equal(t, "http://localhost:8123/callback", sess.RedirectURI)
	assert.Equal(t, "client-state", sess.ClientState)
}

func TestPendingSessionConsumeIsOneShot(t *testing.T) {
	ps := testPendingStore(t, DefaultConfig())

	id := ps.Create("client_a", "challenge", "http://localhost:8123/callback", "")
	require.NotNil(t, ps.Consume(id))
	assert.Nil(t, ps.Consume(id))
}

func TestPendingSessionUnknownID(t *testing.T) {
	ps := testPendingStore(t, DefaultConfig())
	assert.Nil(t, ps.Consume("no-such-session"))
}

func TestPendingSessionExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTTL = 20 * time.Millisecond
	ps := testPendingStore(t, cfg)

	id := ps.Create("client_a", "challenge", "http://localhost:8123/callback", "")
	time.Sleep(40 * time.Millisecond)

	// An expired session is indistinguishable from an unknown one.
	assert.Nil(t, ps.Consume(id))
}

func TestPendingSessionSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTTL = 10 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	ps := testPendingStore(t, cfg)

	ps.Create("client_a", "challenge", "http://localhost:8123/callback", "")
	ps.Create("client_a", "challenge", "http://localhost:8123/callback", "")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, ps.Count())
}

func TestPendingSessionIDsAreUnique(t *testing.T) {
	ps := testPendingStore(t, DefaultConfig())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := ps.Create("client_a", "challenge", "http://localhost:8123/callback", "")
		require.False(t, seen[id])
		seen[id] = true
	}
}
