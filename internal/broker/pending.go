package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingSession bridges the gap between a downstream client asking to
// authorize and the upstream provider redirecting back, across an arbitrary
// and untrusted delay.
type PendingSession struct {
	SessionID     string
	ClientID      string
	CodeChallenge string
	RedirectURI   string
	ClientState   string // echoed back to the client unchanged
	CreatedAt     time.Time
}

// PendingSessionStore tracks in-flight authorization attempts keyed by an
// opaque session id carried through the upstream provider's state parameter.
type PendingSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*PendingSession

	ttl           time.Duration
	sweepInterval time.Duration
	stopSweep     chan struct{}
}

// NewPendingSessionStore creates the store and starts its eviction goroutine.
func NewPendingSessionStore(cfg Config) *PendingSessionStore {
	cfg = cfg.withDefaults()
	ps := &PendingSessionStore{
		sessions:      make(map[string]*PendingSession),
		ttl:           cfg.SessionTTL,
		sweepInterval: cfg.SweepInterval,
		stopSweep:     make(chan struct{}),
	}
	go ps.sweepLoop()
	return ps
}

// Stop terminates the eviction goroutine.
func (ps *PendingSessionStore) Stop() {
	close(ps.stopSweep)
}

// Create records a new pending session and returns its fresh session id.
func (ps *PendingSessionStore) Create(clientID, codeChallenge, redirectURI, clientState string) string {
	sessionID := uuid.NewString()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.sessions[sessionID] = &PendingSession{
		SessionID:     sessionID,
		ClientID:      clientID,
		CodeChallenge: codeChallenge,
		RedirectURI:   redirectURI,
		ClientState:   clientState,
		CreatedAt:     time.Now(),
	}
	return sessionID
}

// Consume performs a one-shot lookup. The entry is deleted on every call so
// it can never be replayed; unknown and expired sessions are indistinguishable
// and both return nil.
func (ps *PendingSessionStore) Consume(sessionID string) *PendingSession {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sess, ok := ps.sessions[sessionID]
	delete(ps.sessions, sessionID)
	if !ok || time.Since(sess.CreatedAt) > ps.ttl {
		return nil
	}
	return sess
}

// Count returns the number of pending sessions, for status reporting.
func (ps *PendingSessionStore) Count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.sessions)
}

func (ps *PendingSessionStore) sweepLoop() {
	ticker := time.NewTicker(ps.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ps.stopSweep:
			return
		case <-ticker.C:
			ps.sweep()
		}
	}
}

func (ps *PendingSessionStore) sweep() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for id, sess := range ps.sessions {
		if time.Since(sess.CreatedAt) > ps.ttl {
			delete(ps.sessions, id)
		}
	}
}
