// Package session holds the process-lifetime mapping from connection id to
// the session's position in the flow graph. Sessions are never persisted; a
// reconnect always starts over from the flow's start step.
package session

import "sync"

// Session is a per-connection cursor into the flow graph.
type Session struct {
	ConnectionID   string
	ConversationID int64
	// CurrentStepID is the step that runs when the next utterance arrives.
	// Empty means the session has no resting position (halted or not yet
	// initialized).
	CurrentStepID string

	// passMu serializes traversal passes for this connection. A second
	// utterance arriving while a pass is in flight waits here instead of
	// interleaving with it.
	passMu sync.Mutex
}

// BeginPass acquires the session's pass lock.
func (s *Session) BeginPass() { s.passMu.Lock() }

// EndPass releases the session's pass lock.
func (s *Session) EndPass() { s.passMu.Unlock() }

// Store is an in-memory session registry, safe for concurrent use across
// connections.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a session for a connection, replacing any previous one.
func (st *Store) Create(connectionID string, conversationID int64, currentStepID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &Session{
		ConnectionID:   connectionID,
		ConversationID: conversationID,
		CurrentStepID:  currentStepID,
	}
	st.sessions[connectionID] = s
	return s
}

// Get returns the session for a connection, if one exists.
func (st *Store) Get(connectionID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[connectionID]
	return s, ok
}

// SetCurrentStep moves the session's cursor. It is a no-op when the session
// has been removed, so a pass finishing after a disconnect cannot resurrect
// state for a gone connection.
func (st *Store) SetCurrentStep(connectionID, stepID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[connectionID]; ok {
		s.CurrentStepID = stepID
	}
}

// CurrentStep reads the session's cursor.
func (st *Store) CurrentStep(connectionID string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[connectionID]
	if !ok {
		return "", false
	}
	return s.CurrentStepID, true
}

// Remove drops the session for a connection.
func (st *Store) Remove(connectionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, connectionID)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
