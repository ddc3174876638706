// Package bot implements the record lifecycle controller: it routes
// normalized chat events through the session state machine and, once all
// fields are collected, drives the provider gateway and the ownership
// ledger. The ordering rule throughout is that the provider call must
// succeed before the ledger reflects the new state.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"zonebot/internal/auth"
	"zonebot/internal/ledger"
	"zonebot/internal/model"
	"zonebot/internal/session"
)

// Provider is the gateway surface the controller needs. Implemented by
// provider.Gateway; tests substitute a fake.
type Provider interface {
	Zones(ctx context.Context) ([]model.Zone, error)
	RefreshZones(ctx context.Context) ([]model.Zone, error)
	FindRecord(ctx context.Context, zoneID, fqdn string) ([]model.Record, error)
	CreateRecord(ctx context.Context, zoneID, fqdn, recordType, content string) (model.Record, error)
	UpdateRecord(ctx context.Context, zoneID, recordID, newContent string) (model.Record, error)
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

type Auditor interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type Controller struct {
	provider  Provider
	ledger    *ledger.Ledger
	approvals *auth.Approvals
	sessions  *session.Store
	audit     Auditor
	log       *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(p Provider, l *ledger.Ledger, a *auth.Approvals, s *session.Store, audit Auditor, log *slog.Logger) *Controller {
	return &Controller{
		provider:  p,
		ledger:    l,
		approvals: a,
		sessions:  s,
		audit:     audit,
		log:       log,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// HandleEvent processes one inbound event and returns the reply to send.
// Approval is checked first for every event kind. A cancel command is then
// handled without taking the user's flow lock so it clears the session
// immediately even while a provider call for the same user is in flight;
// the flow detects that and discards its result.
func (c *Controller) HandleEvent(ctx context.Context, ev model.Event) model.Reply {
	if !c.approvals.IsApproved(ev.UserID) {
		if ev.Kind == model.EventText {
			return model.Reply{}
		}
		return replyNotApproved()
	}

	if ev.Kind == model.EventCommand && ev.Payload == "cancel" {
		return c.handleCancel(ev.UserID)
	}

	switch ev.Kind {
	case model.EventCommand:
		return c.handleCommand(ctx, ev)
	case model.EventButton:
		lock := c.userLock(ev.UserID)
		lock.Lock()
		defer lock.Unlock()
		return c.handleButton(ctx, ev.UserID, ev.Payload)
	case model.EventText:
		lock := c.userLock(ev.UserID)
		lock.Lock()
		defer lock.Unlock()
		return c.handleText(ctx, ev.UserID, strings.TrimSpace(ev.Payload))
	default:
		return model.Reply{}
	}
}

func (c *Controller) handleCancel(userID int64) model.Reply {
	if c.sessions.Clear(userID) {
		return model.Reply{Text: "Operation cancelled."}
	}
	return model.Reply{Text: "Nothing to cancel."}
}

func (c *Controller) handleCommand(ctx context.Context, ev model.Event) model.Reply {
	switch ev.Payload {
	case "start":
		return replyMenu(c.approvals.IsAdmin(ev.UserID))
	case "approve":
		return c.handleApprove(ctx, ev, true)
	case "unapprove":
		return c.handleApprove(ctx, ev, false)
	default:
		return model.Reply{}
	}
}

func (c *Controller) handleApprove(ctx context.Context, ev model.Event, approve bool) model.Reply {
	if !c.approvals.IsAdmin(ev.UserID) {
		return model.Reply{Text: "Only the administrator can manage approvals."}
	}
	if len(ev.Args) == 0 {
		return model.Reply{Text: "Usage: /" + ev.Payload + " <user id>"}
	}
	target, err := strconv.ParseInt(ev.Args[0], 10, 64)
	if err != nil {
		return model.Reply{Text: "That is not a valid user id."}
	}

	action := "approve_user"
	if approve {
		err = c.approvals.Approve(ctx, target)
	} else {
		action = "unapprove_user"
		err = c.approvals.Unapprove(ctx, target)
	}
	switch {
	case err == auth.ErrAdminImmutable:
		return model.Reply{Text: "The administrator cannot be unapproved."}
	case err != nil:
		c.log.Error("approval update not persisted", "target", target, "error", err)
	}

	_ = c.audit.AppendAudit(ctx, model.AuditEntry{
		UserID: ev.UserID,
		Action: action,
		Detail: "target=" + strconv.FormatInt(target, 10),
	})
	if approve {
		return model.Reply{Text: "User " + strconv.FormatInt(target, 10) + " has been approved."}
	}
	return model.Reply{Text: "User " + strconv.FormatInt(target, 10) + " has been unapproved."}
}

// userLock returns the mutex serializing this user's flow. A held lock is
// only ever waited on by the same user's events; provider calls for one
// user never block another user's processing.
func (c *Controller) userLock(userID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[userID] = lock
	}
	return lock
}
