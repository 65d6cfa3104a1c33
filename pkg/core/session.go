package core

import (
	"sync"
	"time"
)

// AgentState is one of the three states the agent-state machine can occupy.
// Session.SetState only ever changes the state to a caller-given value and
// leaves enforcing valid transitions to the callers (Pipeline, Engine).
type AgentState string

const (
	StateListening AgentState = "LISTENING"
	StateThinking  AgentState = "THINKING"
	StateSpeaking  AgentState = "SPEAKING"
)

// maxHistoryTurns bounds how much conversation history Session retains.
const maxHistoryTurns = 10

// Session is the per-call shared state: identity, conversation history, and
// agent state. It is constructed once by the transport adapter and shared by
// reference with the audio pipeline and dialogue engine for the life of the
// call. All mutable fields are behind mu; History returns a snapshot so
// no caller ever holds the lock across a collaborator call.
type Session struct {
	CallID     string
	FromNumber string
	ToNumber   string
	StartTime  time.Time

	Voice    Voice
	Language Language

	mu      sync.Mutex
	state   AgentState
	history []Turn
}

// NewSession creates a Session in the initial LISTENING state.
func NewSession(callID, from, to string, voice Voice, lang Language) *Session {
	return &Session{
		CallID:     callID,
		FromNumber: from,
		ToNumber:   to,
		StartTime:  time.Now(),
		Voice:      voice,
		Language:   lang,
		state:      StateListening,
	}
}

// State returns the current agent state.
func (s *Session) State() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the agent state. Setting the current value is a
// documented no-op: no mutation, no side effect for the caller to observe.
func (s *Session) SetState(next AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
}

// CompareAndSetState transitions only if the current state equals from,
// returning whether the transition happened. Used by callers that need to
// avoid racing another goroutine's transition out of the same state.
func (s *Session) CompareAndSetState(from, to AgentState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// AddTurn appends a turn to history, trimming to the 10 most recent entries.
func (s *Session) AddTurn(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Content: content})
	if len(s.history) > maxHistoryTurns {
		s.history = s.history[len(s.history)-maxHistoryTurns:]
	}
}

// History returns a snapshot copy of the conversation history. Never hold a
// reference to the live slice: callers that mutate it would corrupt Session.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Turn, len(s.history))
	copy(cp, s.history)
	return cp
}

// Duration reports how long the call has been running.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartTime)
}
