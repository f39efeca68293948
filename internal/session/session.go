// Package session tracks per-conversation workflow state in memory. Sessions
// are not a source of truth: they hold the current step and the fields
// collected so far, and are dropped on completion, denial, cancellation, or
// process restart. The user record in Mongo is authoritative.
package session

import "sync"

// Step identifies the position of a conversation within a workflow.
type Step string

const (
	StepNone Step = ""

	// Registration workflow.
	StepAwaitingEmail    Step = "awaiting-email"
	StepAwaitingNewEmail Step = "awaiting-new-email"

	// Deletion workflow.
	StepAwaitingUsername    Step = "awaiting-username"
	StepChoosingTables      Step = "choosing-tables"
	StepConfirmingSelection Step = "confirming-selection"

	// Access-grant workflow.
	StepAwaitingLinks Step = "awaiting-links"

	// All-links browsing.
	StepChoosingLink Step = "choosing-link"
)

// Fields is the free-form bag of values a workflow accumulates across steps.
type Fields map[string]interface{}

// Well-known field keys shared between workflow steps.
const (
	FieldUsername       = "username"
	FieldEmail          = "email"
	FieldTargetID       = "target_id"
	FieldTargetUsername = "target_username"
	FieldTargetEmail    = "target_email"
	FieldSelectedTables = "selected_tables"
	FieldTableLinks     = "table_links"
)

type state struct {
	step   Step
	fields Fields
}

// Store keeps one session per conversation, keyed by chat id. All methods are
// safe for concurrent use; each conversation is single-writer in practice.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*state
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*state)}
}

// Step returns the current step for the conversation, StepNone when no
// session exists.
func (s *Store) Step(chatID int64) Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok {
		return sess.step
	}
	return StepNone
}

// SetStep moves the conversation to the given step, creating the session when
// needed.
func (s *Store) SetStep(chatID int64, step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensure(chatID).step = step
}

// Clear drops the session entirely: step back to none, all fields discarded.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, chatID)
}

// Data returns a copy of the accumulated fields. Mutating the returned map
// does not affect the session.
func (s *Store) Data(chatID int64) Fields {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return Fields{}
	}

	out := make(Fields, len(sess.fields))
	for k, v := range sess.fields {
		out[k] = v
	}
	return out
}

// UpdateData merges the partial fields into the session, creating it when
// needed. A nil value removes the key.
func (s *Store) UpdateData(chatID int64, partial Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensure(chatID)
	for k, v := range partial {
		if v == nil {
			delete(sess.fields, k)
			continue
		}
		sess.fields[k] = v
	}
}

func (s *Store) ensure(chatID int64) *state {
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &state{fields: make(Fields)}
		s.sessions[chatID] = sess
	}
	return sess
}

// String reads a string field, returning "" when absent or mistyped.
func (f Fields) String(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

// Int64 reads an int64 field, returning 0 when absent or mistyped.
func (f Fields) Int64(key string) int64 {
	if v, ok := f[key].(int64); ok {
		return v
	}
	return 0
}

// Strings reads a string-slice field, returning nil when absent or mistyped.
func (f Fields) Strings(key string) []string {
	if v, ok := f[key].([]string); ok {
		return v
	}
	return nil
}

// StringMap reads a string-map field, returning nil when absent or mistyped.
func (f Fields) StringMap(key string) map[string]string {
	if v, ok := f[key].(map[string]string); ok {
		return v
	}
	return nil
}
