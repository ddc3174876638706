package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonebot/internal/auth"
	"zonebot/internal/database"
	"zonebot/internal/ledger"
	"zonebot/internal/model"
	"zonebot/internal/provider"
	"zonebot/internal/session"
)

const (
	adminID = int64(1)
	userA   = int64(100)
	userB   = int64(200)
)

type fakeProvider struct {
	mu      sync.Mutex
	zones   []model.Zone
	records map[string]model.Record
	nextID  int

	createCalls int
	updateCalls int
	deleteCalls int

	failCreate error
	failUpdate error
	failDelete error
	onCreate   func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		zones:   []model.Zone{{ID: "zone-1", Name: "example.com"}},
		records: make(map[string]model.Record),
	}
}

func (f *fakeProvider) Zones(context.Context) ([]model.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Zone(nil), f.zones...), nil
}

func (f *fakeProvider) RefreshZones(ctx context.Context) ([]model.Zone, error) {
	return f.Zones(ctx)
}

func (f *fakeProvider) FindRecord(_ context.Context, zoneID, fqdn string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if r.ZoneID == zoneID && r.Name == fqdn {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeProvider) CreateRecord(_ context.Context, zoneID, fqdn, recordType, content string) (model.Record, error) {
	f.mu.Lock()
	f.createCalls++
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return model.Record{}, f.failCreate
	}
	for _, r := range f.records {
		if r.Name == fqdn && r.Type == recordType {
			return model.Record{}, provider.ErrAlreadyExists
		}
	}
	f.nextID++
	rec := model.Record{
		ID:      fmt.Sprintf("rec-%d", f.nextID),
		ZoneID:  zoneID,
		Name:    fqdn,
		Type:    recordType,
		Content: content,
		TTL:     provider.DefaultTTL,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeProvider) UpdateRecord(_ context.Context, zoneID, recordID, newContent string) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.failUpdate != nil {
		return model.Record{}, f.failUpdate
	}
	rec, ok := f.records[recordID]
	if !ok {
		return model.Record{}, provider.ErrNotFound
	}
	rec.Content = newContent
	f.records[recordID] = rec
	return rec, nil
}

func (f *fakeProvider) DeleteRecord(_ context.Context, zoneID, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.records[recordID]; !ok {
		return provider.ErrNotFound
	}
	delete(f.records, recordID)
	return nil
}

func newTestController(t *testing.T, quota int) (*Controller, *fakeProvider) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewMemory()

	approvals := auth.New(store, adminID, logger)
	require.NoError(t, approvals.Approve(context.Background(), userA))
	require.NoError(t, approvals.Approve(context.Background(), userB))

	fp := newFakeProvider()
	c := New(fp, ledger.New(store, quota, logger), approvals, session.NewStore(), store, logger)
	return c, fp
}

func cmd(userID int64, name string, args ...string) model.Event {
	return model.Event{UserID: userID, Kind: model.EventCommand, Payload: name, Args: args}
}

func btn(userID int64, payload string) model.Event {
	return model.Event{UserID: userID, Kind: model.EventButton, Payload: payload}
}

func txt(userID int64, text string) model.Event {
	return model.Event{UserID: userID, Kind: model.EventText, Payload: text}
}

// runCreate drives user A through the whole create conversation.
func runCreate(t *testing.T, c *Controller, name, value string) model.Reply {
	t.Helper()
	ctx := context.Background()

	reply := c.HandleEvent(ctx, btn(userA, "menu:add"))
	require.Equal(t, "Select a domain:", reply.Text)
	require.NotEmpty(t, reply.Options)

	reply = c.HandleEvent(ctx, btn(userA, "zone:example.com"))
	require.Contains(t, reply.Text, "Select the record type")

	reply = c.HandleEvent(ctx, btn(userA, "type:A"))
	require.Contains(t, reply.Text, "subdomain name")

	reply = c.HandleEvent(ctx, txt(userA, name))
	require.Contains(t, reply.Text, "IP address")

	return c.HandleEvent(ctx, txt(userA, value))
}

func TestCreateFlowEndToEnd(t *testing.T) {
	c, fp := newTestController(t, 15)

	reply := c.HandleEvent(context.Background(), cmd(userA, "start"))
	assert.NotEmpty(t, reply.Options, "main menu should offer options")

	reply = runCreate(t, c, "foo", "1.2.3.4")
	assert.Contains(t, reply.Text, "foo.example.com")
	assert.Contains(t, reply.Text, "1.2.3.4")

	owned := c.ledger.Owned(userA)
	require.Len(t, owned, 1)
	assert.Equal(t, "foo.example.com", owned[0].Name)
	assert.Equal(t, "A", owned[0].Type)
	assert.Equal(t, userA, owned[0].OwnerID)
	assert.Equal(t, 1, fp.createCalls)

	// The session is gone: further text is ignored.
	assert.True(t, c.HandleEvent(context.Background(), txt(userA, "5.6.7.8")).Empty())
}

func TestNonOwnerCannotModifyOrDelete(t *testing.T) {
	c, fp := newTestController(t, 15)
	reply := runCreate(t, c, "foo", "1.2.3.4")
	require.Contains(t, reply.Text, "foo.example.com")
	recID := c.ledger.Owned(userA)[0].ID

	ctx := context.Background()
	reply = c.HandleEvent(ctx, btn(userB, "mod:"+recID))
	assert.Equal(t, "You don't own this record.", reply.Text)

	reply = c.HandleEvent(ctx, btn(userB, "rm:"+recID))
	assert.Equal(t, "You don't own this record.", reply.Text)

	assert.Zero(t, fp.updateCalls, "no provider call may be issued for a non-owner")
	assert.Zero(t, fp.deleteCalls)
	assert.True(t, c.ledger.IsOwner(userA, recID))
}

func TestQuotaExceededBeforeAnyProviderCall(t *testing.T) {
	c, fp := newTestController(t, 2)
	ctx := context.Background()

	for i, name := range []string{"one", "two"} {
		require.NoError(t, c.ledger.Register(ctx, model.Record{
			ID: fmt.Sprintf("seed-%d", i), OwnerID: userA, ZoneID: "zone-1",
			ZoneName: "example.com", Name: name + ".example.com", Type: "A", Content: "9.9.9.9",
		}))
	}

	reply := runCreate(t, c, "three", "1.2.3.4")
	assert.Contains(t, reply.Text, "record limit")
	assert.Contains(t, reply.Text, "2 of 2")
	assert.Zero(t, fp.createCalls, "quota failures must not reach the provider")
	assert.Len(t, c.ledger.Owned(userA), 2)
}

func TestCreateThenDeleteRoundTrip(t *testing.T) {
	c, fp := newTestController(t, 15)
	runCreate(t, c, "foo", "1.2.3.4")
	recID := c.ledger.Owned(userA)[0].ID

	reply := c.HandleEvent(context.Background(), btn(userA, "rm:"+recID))
	assert.Contains(t, reply.Text, "deleted")
	assert.Equal(t, 1, fp.deleteCalls)
	assert.Empty(t, c.ledger.Owned(userA), "ledger returns to its prior state")
}

func TestModifyFlow(t *testing.T) {
	c, fp := newTestController(t, 15)
	runCreate(t, c, "foo", "1.2.3.4")
	recID := c.ledger.Owned(userA)[0].ID

	ctx := context.Background()
	reply := c.HandleEvent(ctx, btn(userA, "mod:"+recID))
	assert.Contains(t, reply.Text, "new IP address")

	reply = c.HandleEvent(ctx, txt(userA, "5.6.7.8"))
	assert.Contains(t, reply.Text, "updated")
	assert.Equal(t, 1, fp.updateCalls)

	rec, ok := c.ledger.Find(userA, recID)
	require.True(t, ok)
	assert.Equal(t, "5.6.7.8", rec.Content, "ledger mirrors the confirmed content")
}

func TestMalformedInputRepromptsWithoutAdvancing(t *testing.T) {
	c, _ := newTestController(t, 15)
	ctx := context.Background()

	c.HandleEvent(ctx, btn(userA, "menu:add"))
	c.HandleEvent(ctx, btn(userA, "zone:example.com"))
	c.HandleEvent(ctx, btn(userA, "type:A"))

	reply := c.HandleEvent(ctx, txt(userA, "not a label!"))
	assert.Contains(t, reply.Text, "not valid")

	sess, ok := c.sessions.Get(userA)
	require.True(t, ok)
	assert.Equal(t, session.AwaitingName, sess.State, "validation failure is a self-loop")

	// Malformed value likewise re-prompts.
	c.HandleEvent(ctx, txt(userA, "foo"))
	reply = c.HandleEvent(ctx, txt(userA, "999.999.999.999"))
	assert.Contains(t, reply.Text, "not a valid IPv4 address")
	sess, _ = c.sessions.Get(userA)
	assert.Equal(t, session.AwaitingValue, sess.State)
}

func TestCancelFromAnyStateReturnsToIdle(t *testing.T) {
	c, fp := newTestController(t, 15)
	ctx := context.Background()

	steps := []model.Event{
		btn(userA, "menu:add"),
		btn(userA, "zone:example.com"),
		btn(userA, "type:A"),
		txt(userA, "foo"),
	}
	for n := 1; n <= len(steps); n++ {
		for _, ev := range steps[:n] {
			c.HandleEvent(ctx, ev)
		}
		reply := c.HandleEvent(ctx, cmd(userA, "cancel"))
		assert.Equal(t, "Operation cancelled.", reply.Text)
		_, ok := c.sessions.Get(userA)
		assert.False(t, ok)
	}

	assert.Zero(t, fp.createCalls, "cancelled flows never reach the provider")
	assert.Equal(t, "Nothing to cancel.", c.HandleEvent(ctx, cmd(userA, "cancel")).Text)
}

func TestCancelDuringProviderCallDiscardsReply(t *testing.T) {
	c, fp := newTestController(t, 15)
	ctx := context.Background()

	// Cancel arrives while the create call is in flight; it must not wait
	// for the flow lock.
	fp.onCreate = func() {
		r := c.HandleEvent(ctx, cmd(userA, "cancel"))
		assert.Equal(t, "Operation cancelled.", r.Text)
	}

	reply := runCreate(t, c, "foo", "1.2.3.4")
	assert.True(t, reply.Empty(), "result of the overtaken call is discarded")

	// The provider record is real, so ownership is still tracked.
	owned := c.ledger.Owned(userA)
	require.Len(t, owned, 1)
	assert.Equal(t, "foo.example.com", owned[0].Name)
}

func TestProviderFailureLeavesLedgerUntouched(t *testing.T) {
	c, fp := newTestController(t, 15)
	fp.failCreate = provider.ErrUnavailable

	reply := runCreate(t, c, "foo", "1.2.3.4")
	assert.Contains(t, reply.Text, "not responding")
	assert.Empty(t, c.ledger.Owned(userA), "nothing may be registered without provider confirmation")
}

func TestDuplicateRecordSurfaced(t *testing.T) {
	c, _ := newTestController(t, 15)
	runCreate(t, c, "foo", "1.2.3.4")

	reply := runCreate(t, c, "foo", "5.6.7.8")
	assert.Contains(t, reply.Text, "already exists")
	assert.Len(t, c.ledger.Owned(userA), 1)
}

func TestDriftSurfacedOnDelete(t *testing.T) {
	c, fp := newTestController(t, 15)
	runCreate(t, c, "foo", "1.2.3.4")
	recID := c.ledger.Owned(userA)[0].ID

	// The record vanished on the provider side, outside this system.
	fp.failDelete = provider.ErrNotFound

	reply := c.HandleEvent(context.Background(), btn(userA, "rm:"+recID))
	assert.Contains(t, reply.Text, "no longer exists at the provider")
	assert.True(t, c.ledger.IsOwner(userA, recID), "divergence is surfaced, not reconciled")
}

func TestFailedDeleteKeepsRecordDeletable(t *testing.T) {
	c, fp := newTestController(t, 15)
	runCreate(t, c, "foo", "1.2.3.4")
	recID := c.ledger.Owned(userA)[0].ID

	fp.failDelete = provider.ErrUnavailable
	reply := c.HandleEvent(context.Background(), btn(userA, "rm:"+recID))
	assert.Contains(t, reply.Text, "not responding")
	assert.True(t, c.ledger.IsOwner(userA, recID))

	// Retry succeeds once the provider is back.
	fp.failDelete = nil
	reply = c.HandleEvent(context.Background(), btn(userA, "rm:"+recID))
	assert.Contains(t, reply.Text, "deleted")
	assert.False(t, c.ledger.IsOwner(userA, recID))
}

func TestUnapprovedUsersAreRefused(t *testing.T) {
	c, fp := newTestController(t, 15)
	ctx := context.Background()
	stranger := int64(999)

	assert.Equal(t, "You are not approved to use this bot.", c.HandleEvent(ctx, cmd(stranger, "start")).Text)
	assert.Equal(t, "You are not approved to use this bot.", c.HandleEvent(ctx, cmd(stranger, "cancel")).Text)
	assert.Equal(t, "You are not approved to use this bot.", c.HandleEvent(ctx, btn(stranger, "menu:add")).Text)
	assert.True(t, c.HandleEvent(ctx, txt(stranger, "hello")).Empty())
	assert.Zero(t, fp.createCalls)
}

func TestApprovalCommands(t *testing.T) {
	c, _ := newTestController(t, 15)
	ctx := context.Background()
	stranger := int64(999)

	assert.Contains(t, c.HandleEvent(ctx, cmd(userA, "approve", "999")).Text, "Only the administrator")
	assert.False(t, c.approvals.IsApproved(stranger))

	assert.Contains(t, c.HandleEvent(ctx, cmd(adminID, "approve", "999")).Text, "approved")
	assert.True(t, c.approvals.IsApproved(stranger))

	assert.Contains(t, c.HandleEvent(ctx, cmd(adminID, "unapprove", "999")).Text, "unapproved")
	assert.False(t, c.approvals.IsApproved(stranger))

	assert.Equal(t, "The administrator cannot be unapproved.",
		c.HandleEvent(ctx, cmd(adminID, "unapprove", "1")).Text)

	assert.Contains(t, c.HandleEvent(ctx, cmd(adminID, "approve", "nope")).Text, "not a valid user id")
	assert.Contains(t, c.HandleEvent(ctx, cmd(adminID, "approve")).Text, "Usage")
}

func TestListOwnedRecords(t *testing.T) {
	c, _ := newTestController(t, 15)
	ctx := context.Background()

	assert.Contains(t, c.HandleEvent(ctx, btn(userA, "menu:list")).Text, "not created any records")

	runCreate(t, c, "foo", "1.2.3.4")
	reply := c.HandleEvent(ctx, btn(userA, "menu:list"))
	assert.Contains(t, reply.Text, "1 of 15")
	assert.Contains(t, reply.Text, "foo.example.com (A) -> 1.2.3.4")
}

func TestAdminPanelRestricted(t *testing.T) {
	c, _ := newTestController(t, 15)
	ctx := context.Background()

	assert.Contains(t, c.HandleEvent(ctx, btn(userA, "menu:admin")).Text, "Only the administrator")
	reply := c.HandleEvent(ctx, btn(adminID, "menu:admin"))
	assert.Contains(t, reply.Text, "Approved users: 2")
	assert.NotContains(t, reply.Text, "Recent actions:", "no audit entries yet")

	runCreate(t, c, "foo", "1.2.3.4")
	reply = c.HandleEvent(ctx, btn(adminID, "menu:admin"))
	assert.Contains(t, reply.Text, "Records tracked: 1")
	assert.Contains(t, reply.Text, "Recent actions:")
	assert.Contains(t, reply.Text, "create_record foo.example.com (A) by 100")
}

func TestTextOutsideAnyExpectationIsIgnored(t *testing.T) {
	c, _ := newTestController(t, 15)
	ctx := context.Background()

	assert.True(t, c.HandleEvent(ctx, txt(userA, "hello")).Empty())

	// Domain-selection state expects a button, not text.
	c.HandleEvent(ctx, btn(userA, "menu:add"))
	assert.True(t, c.HandleEvent(ctx, txt(userA, "example.com")).Empty())
}
