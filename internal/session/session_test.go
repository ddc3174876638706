package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonebot/internal/model"
	"zonebot/internal/session"
)

func TestCreateFlowTransitions(t *testing.T) {
	st := session.NewStore()

	s := st.StartCreate(1)
	assert.Equal(t, session.AwaitingDomain, s.State)

	s, err := st.SetDomain(1, "example.com", "zone-1")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingType, s.State)
	assert.Equal(t, "example.com", s.Domain)
	assert.Equal(t, "zone-1", s.ZoneID)

	s, err = st.SetType(1, "A")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingName, s.State)

	s, err = st.SetName(1, "foo")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingValue, s.State)
	assert.Equal(t, "foo", s.Name)
}

func TestOutOfOrderEventsDoNotAdvance(t *testing.T) {
	st := session.NewStore()

	// No session at all.
	_, err := st.SetName(1, "foo")
	assert.ErrorIs(t, err, session.ErrBadTransition)

	// Wrong state for the event.
	st.StartCreate(1)
	_, err = st.SetType(1, "A")
	assert.ErrorIs(t, err, session.ErrBadTransition)

	s, ok := st.Get(1)
	require.True(t, ok)
	assert.Equal(t, session.AwaitingDomain, s.State, "failed transition must not move the machine")
}

func TestClearFromEveryState(t *testing.T) {
	st := session.NewStore()

	advance := []func(){
		func() { st.StartCreate(1) },
		func() { _, _ = st.SetDomain(1, "example.com", "zone-1") },
		func() { _, _ = st.SetType(1, "A") },
		func() { _, _ = st.SetName(1, "foo") },
	}
	for steps := 1; steps <= len(advance); steps++ {
		st.Clear(1)
		for i := 0; i < steps; i++ {
			advance[i]()
		}
		assert.True(t, st.Clear(1))
		_, ok := st.Get(1)
		assert.False(t, ok, "session must be gone after cancel")
	}

	// A fresh start shows no leftover fields.
	s := st.StartCreate(1)
	assert.Empty(t, s.Domain)
	assert.Empty(t, s.RecordType)
	assert.Empty(t, s.Name)
}

func TestModifyFlowReachableFromIdle(t *testing.T) {
	st := session.NewStore()

	target := model.Record{ID: "rec-1", ZoneID: "zone-1", ZoneName: "example.com", Name: "foo.example.com", Type: "CNAME"}
	s := st.StartModify(7, target)
	assert.Equal(t, session.AwaitingNewValue, s.State)
	assert.Equal(t, "rec-1", s.TargetRecordID)
	assert.Equal(t, "CNAME", s.RecordType)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	st := session.NewStore()

	st.StartCreate(1)
	_, _ = st.SetDomain(1, "example.com", "zone-1")
	st.StartCreate(2)

	s1, ok := st.Get(1)
	require.True(t, ok)
	s2, ok := st.Get(2)
	require.True(t, ok)

	assert.Equal(t, session.AwaitingType, s1.State)
	assert.Equal(t, session.AwaitingDomain, s2.State)
	assert.NotEqual(t, s1.Seq, s2.Seq)
}

func TestAliveAndClearIfTrackIncarnations(t *testing.T) {
	st := session.NewStore()

	first := st.StartCreate(1)
	assert.True(t, st.Alive(1, first.Seq))

	st.Clear(1)
	assert.False(t, st.Alive(1, first.Seq))

	second := st.StartCreate(1)
	assert.False(t, st.ClearIf(1, first.Seq), "stale incarnation must not clear the new session")
	assert.True(t, st.Alive(1, second.Seq))
	assert.True(t, st.ClearIf(1, second.Seq))
	assert.False(t, st.Alive(1, second.Seq))
}
