// Package session implements the per-user conversation state machine that
// collects record parameters step by step. Each user owns at most one
// session; fields are only populated as far as the current state allows.
package session

import (
	"errors"
	"sync"

	"zonebot/internal/model"
)

type State int

const (
	Idle State = iota
	AwaitingDomain
	AwaitingType
	AwaitingName
	AwaitingValue
	AwaitingNewValue
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDomain:
		return "awaiting-domain"
	case AwaitingType:
		return "awaiting-type"
	case AwaitingName:
		return "awaiting-name"
	case AwaitingValue:
		return "awaiting-value"
	case AwaitingNewValue:
		return "awaiting-new-value"
	default:
		return "unknown"
	}
}

// ErrBadTransition means the event does not apply to the session's current
// state. Callers treat it as "no active input expectation" and ignore or
// re-prompt; it never advances the machine.
var ErrBadTransition = errors.New("event not valid in current session state")

// Session carries the fields collected so far. Seq identifies this
// incarnation of the user's session: a cleared or restarted session gets a
// new Seq, which lets an in-flight operation detect cancellation.
type Session struct {
	UserID int64
	State  State
	Seq    uint64

	Domain     string
	ZoneID     string
	RecordType string
	Name       string

	TargetRecordID string
}

type Store struct {
	mu   sync.Mutex
	seq  uint64
	byID map[int64]*Session
}

func NewStore() *Store {
	return &Store{byID: make(map[int64]*Session)}
}

// Get returns a copy of the user's session.
func (st *Store) Get(userID int64) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// StartCreate begins a fresh create flow, replacing any session in
// progress for this user.
func (st *Store) StartCreate(userID int64) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	s := &Session{UserID: userID, State: AwaitingDomain, Seq: st.seq}
	st.byID[userID] = s
	return *s
}

// StartModify begins a modify flow for an already-selected target record,
// reachable directly from idle.
func (st *Store) StartModify(userID int64, target model.Record) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	s := &Session{
		UserID:         userID,
		State:          AwaitingNewValue,
		Seq:            st.seq,
		Domain:         target.ZoneName,
		ZoneID:         target.ZoneID,
		RecordType:     target.Type,
		Name:           target.Name,
		TargetRecordID: target.ID,
	}
	st.byID[userID] = s
	return *s
}

func (st *Store) SetDomain(userID int64, domain, zoneID string) (Session, error) {
	return st.advance(userID, AwaitingDomain, func(s *Session) {
		s.Domain = domain
		s.ZoneID = zoneID
		s.State = AwaitingType
	})
}

func (st *Store) SetType(userID int64, recordType string) (Session, error) {
	return st.advance(userID, AwaitingType, func(s *Session) {
		s.RecordType = recordType
		s.State = AwaitingName
	})
}

func (st *Store) SetName(userID int64, name string) (Session, error) {
	return st.advance(userID, AwaitingName, func(s *Session) {
		s.Name = name
		s.State = AwaitingValue
	})
}

func (st *Store) advance(userID int64, want State, apply func(*Session)) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[userID]
	if !ok || s.State != want {
		return Session{}, ErrBadTransition
	}
	apply(s)
	return *s, nil
}

// Clear drops the user's session, discarding all pending fields. Clearing
// an absent session is a no-op.
func (st *Store) Clear(userID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.byID[userID]
	delete(st.byID, userID)
	return ok
}

// ClearIf drops the session only if it is still the incarnation seq, so a
// finishing flow cannot tear down a session the user started afterwards.
func (st *Store) ClearIf(userID int64, seq uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[userID]
	if !ok || s.Seq != seq {
		return false
	}
	delete(st.byID, userID)
	return true
}

// Alive reports whether the session incarnation identified by seq is still
// the user's current one. An operation whose session died mid-flight uses
// this to discard its result.
func (st *Store) Alive(userID int64, seq uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[userID]
	return ok && s.Seq == seq
}
