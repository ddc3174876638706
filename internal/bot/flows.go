package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zonebot/internal/dnsname"
	"zonebot/internal/ledger"
	"zonebot/internal/model"
	"zonebot/internal/provider"
	"zonebot/internal/session"
)

func (c *Controller) handleButton(ctx context.Context, userID int64, payload string) model.Reply {
	switch {
	case payload == "menu:add":
		return c.beginCreate(ctx, userID)
	case payload == "menu:remove":
		return c.pickOwned(userID, "rm", "Select a record to remove:")
	case payload == "menu:modify":
		return c.pickOwned(userID, "mod", "Select a record to modify:")
	case payload == "menu:list":
		return c.listOwned(userID)
	case payload == "menu:admin":
		return c.adminPanel(ctx, userID)
	case strings.HasPrefix(payload, "zone:"):
		return c.selectDomain(ctx, userID, strings.TrimPrefix(payload, "zone:"))
	case strings.HasPrefix(payload, "type:"):
		return c.selectType(userID, strings.TrimPrefix(payload, "type:"))
	case strings.HasPrefix(payload, "rm:"):
		return c.deleteRecord(ctx, userID, strings.TrimPrefix(payload, "rm:"))
	case strings.HasPrefix(payload, "mod:"):
		return c.beginModify(userID, strings.TrimPrefix(payload, "mod:"))
	default:
		return model.Reply{}
	}
}

// handleText feeds free-text input to the session state machine. Text that
// arrives while no input is expected is ignored; malformed input
// re-prompts without advancing the state.
func (c *Controller) handleText(ctx context.Context, userID int64, text string) model.Reply {
	sess, ok := c.sessions.Get(userID)
	if !ok {
		return model.Reply{}
	}

	switch sess.State {
	case session.AwaitingName:
		if !dnsname.ValidLabel(text) {
			return model.Reply{Text: "That name is not valid. Use letters, digits and hyphens (up to 63 characters), or @ for the root domain. Try again:"}
		}
		sess, err := c.sessions.SetName(userID, text)
		if err != nil {
			return model.Reply{}
		}
		return replyAskValue(sess.RecordType)
	case session.AwaitingValue:
		if !dnsname.ValidContent(sess.RecordType, text) {
			return replyBadValue(sess.RecordType)
		}
		return c.createRecord(ctx, sess, text)
	case session.AwaitingNewValue:
		if !dnsname.ValidContent(sess.RecordType, text) {
			return replyBadValue(sess.RecordType)
		}
		return c.modifyRecord(ctx, sess, text)
	default:
		return model.Reply{}
	}
}

func (c *Controller) beginCreate(ctx context.Context, userID int64) model.Reply {
	zones, err := c.provider.RefreshZones(ctx)
	if err != nil {
		return replyProviderFailure(err)
	}
	if len(zones) == 0 {
		return model.Reply{Text: "No domains are available."}
	}

	c.sessions.StartCreate(userID)
	options := make([]model.Option, 0, len(zones))
	for _, z := range zones {
		options = append(options, model.Option{Label: z.Name, Value: "zone:" + z.Name})
	}
	return model.Reply{Text: "Select a domain:", Options: options}
}

func (c *Controller) selectDomain(ctx context.Context, userID int64, domain string) model.Reply {
	zones, err := c.provider.Zones(ctx)
	if err != nil {
		return replyProviderFailure(err)
	}
	zoneID := ""
	for _, z := range zones {
		if z.Name == domain {
			zoneID = z.ID
			break
		}
	}
	if zoneID == "" {
		return model.Reply{Text: "That domain is not available."}
	}

	if _, err := c.sessions.SetDomain(userID, domain, zoneID); err != nil {
		return model.Reply{}
	}
	options := make([]model.Option, 0, len(dnsname.Types))
	for _, t := range dnsname.Types {
		options = append(options, model.Option{Label: t + " record", Value: "type:" + t})
	}
	return model.Reply{Text: "Selected domain: " + domain + "\nSelect the record type:", Options: options}
}

func (c *Controller) selectType(userID int64, recordType string) model.Reply {
	if !dnsname.ValidType(recordType) {
		return model.Reply{}
	}
	if _, err := c.sessions.SetType(userID, recordType); err != nil {
		return model.Reply{}
	}
	return model.Reply{Text: "Enter the subdomain name (or @ for the root domain):"}
}

// createRecord runs the terminal step of the create flow: quota check,
// provider create, then ledger registration. Nothing is registered unless
// the provider confirmed the record.
func (c *Controller) createRecord(ctx context.Context, sess session.Session, content string) model.Reply {
	userID := sess.UserID
	if count := c.ledger.Count(userID); count >= c.ledger.Quota() {
		c.sessions.ClearIf(userID, sess.Seq)
		return model.Reply{Text: fmt.Sprintf("You have reached the record limit (%d of %d used).", count, c.ledger.Quota())}
	}

	fqdn := dnsname.Qualify(sess.Name, sess.Domain)
	rec, err := c.provider.CreateRecord(ctx, sess.ZoneID, fqdn, sess.RecordType, content)
	if err != nil {
		c.sessions.ClearIf(userID, sess.Seq)
		if errors.Is(err, provider.ErrAlreadyExists) {
			return model.Reply{Text: "A " + sess.RecordType + " record for " + fqdn + " already exists."}
		}
		return replyProviderFailure(err)
	}

	alive := c.sessions.ClearIf(userID, sess.Seq)

	rec.OwnerID = userID
	rec.ZoneName = sess.Domain
	if err := c.ledger.Register(ctx, rec); err != nil {
		// The provider record exists either way; report what we know.
		var quotaErr *ledger.QuotaError
		switch {
		case errors.As(err, &quotaErr):
			c.log.Error("record created on provider but over quota in ledger", "user", userID, "record", rec.ID)
			return model.Reply{Text: quotaErr.Error()}
		case errors.Is(err, ledger.ErrPersistence):
			c.log.Error("record created but ledger flush failed", "user", userID, "record", rec.ID, "error", err)
		default:
			c.log.Error("record created but not registered", "user", userID, "record", rec.ID, "error", err)
		}
	}

	_ = c.audit.AppendAudit(ctx, model.AuditEntry{
		UserID:     userID,
		Action:     "create_record",
		ZoneName:   sess.Domain,
		RecordName: fqdn,
		RecordType: sess.RecordType,
		Detail:     "content=" + content,
	})

	if !alive {
		// Cancelled while the provider call was in flight. The record is
		// real and stays owned; only the reply is discarded.
		c.log.Warn("create finished after cancellation, result discarded", "user", userID, "record", rec.ID)
		return model.Reply{}
	}
	return model.Reply{Text: fmt.Sprintf(
		"DNS record created.\nName: %s\nType: %s\nContent: %s\nTTL: %d\nProxying: off",
		fqdn, rec.Type, rec.Content, rec.TTL,
	)}
}

func (c *Controller) beginModify(userID int64, recordID string) model.Reply {
	rec, ok := c.ledger.Find(userID, recordID)
	if !ok {
		return replyNotOwner()
	}
	c.sessions.StartModify(userID, rec)
	return replyAskNewValue(rec)
}

// modifyRecord updates the content of an owned record in place. Ownership
// was checked when the target was selected and is re-checked here; a
// non-owner never causes a provider call.
func (c *Controller) modifyRecord(ctx context.Context, sess session.Session, content string) model.Reply {
	userID := sess.UserID
	rec, ok := c.ledger.Find(userID, sess.TargetRecordID)
	if !ok {
		c.sessions.ClearIf(userID, sess.Seq)
		return replyNotOwner()
	}

	updated, err := c.provider.UpdateRecord(ctx, rec.ZoneID, rec.ID, content)
	if err != nil {
		c.sessions.ClearIf(userID, sess.Seq)
		if errors.Is(err, provider.ErrNotFound) {
			return replyDrift(rec)
		}
		return replyProviderFailure(err)
	}

	alive := c.sessions.ClearIf(userID, sess.Seq)

	if err := c.ledger.SetContent(ctx, userID, rec.ID, updated.Content); err != nil {
		c.log.Error("record updated but ledger flush failed", "user", userID, "record", rec.ID, "error", err)
	}
	_ = c.audit.AppendAudit(ctx, model.AuditEntry{
		UserID:     userID,
		Action:     "modify_record",
		ZoneName:   rec.ZoneName,
		RecordName: rec.Name,
		RecordType: rec.Type,
		Detail:     "content=" + updated.Content,
	})

	if !alive {
		c.log.Warn("modify finished after cancellation, result discarded", "user", userID, "record", rec.ID)
		return model.Reply{}
	}
	return model.Reply{Text: fmt.Sprintf("Record updated.\nName: %s\nType: %s\nContent: %s", rec.Name, rec.Type, updated.Content)}
}

// deleteRecord removes an owned record from the provider, then from the
// ledger. A failed provider delete leaves the ledger entry intact so the
// user can retry.
func (c *Controller) deleteRecord(ctx context.Context, userID int64, recordID string) model.Reply {
	rec, ok := c.ledger.Find(userID, recordID)
	if !ok {
		return replyNotOwner()
	}

	if err := c.provider.DeleteRecord(ctx, rec.ZoneID, rec.ID); err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return replyDrift(rec)
		}
		return replyProviderFailure(err)
	}

	if err := c.ledger.Unregister(ctx, userID, rec.ID); err != nil {
		c.log.Error("record deleted but ledger flush failed", "user", userID, "record", rec.ID, "error", err)
	}
	_ = c.audit.AppendAudit(ctx, model.AuditEntry{
		UserID:     userID,
		Action:     "delete_record",
		ZoneName:   rec.ZoneName,
		RecordName: rec.Name,
		RecordType: rec.Type,
	})
	return model.Reply{Text: "Record " + rec.Name + " (" + rec.Type + ") deleted."}
}

func (c *Controller) pickOwned(userID int64, prefix, prompt string) model.Reply {
	owned := c.ledger.Owned(userID)
	if len(owned) == 0 {
		return model.Reply{Text: "You have not created any records yet."}
	}
	options := make([]model.Option, 0, len(owned))
	for _, r := range owned {
		options = append(options, model.Option{
			Label: r.Name + " (" + r.Type + ")",
			Value: prefix + ":" + r.ID,
		})
	}
	return model.Reply{Text: prompt, Options: options}
}

func (c *Controller) listOwned(userID int64) model.Reply {
	owned := c.ledger.Owned(userID)
	if len(owned) == 0 {
		return model.Reply{Text: "You have not created any records yet."}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your records (%d of %d):\n", len(owned), c.ledger.Quota())
	for _, r := range owned {
		fmt.Fprintf(&b, "- %s (%s) -> %s\n", r.Name, r.Type, r.Content)
	}
	return model.Reply{Text: strings.TrimRight(b.String(), "\n")}
}

func (c *Controller) adminPanel(ctx context.Context, userID int64) model.Reply {
	if !c.approvals.IsAdmin(userID) {
		return model.Reply{Text: "Only the administrator can open the admin panel."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Admin panel\nApproved users: %d\nRecords tracked: %d\n", c.approvals.Count(), c.ledger.Total())

	entries, err := c.audit.ListAudit(ctx, 5)
	if err != nil {
		c.log.Warn("could not read audit log", "error", err)
	}
	if len(entries) > 0 {
		b.WriteString("\nRecent actions:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s", e.Action)
			if e.RecordName != "" {
				fmt.Fprintf(&b, " %s (%s)", e.RecordName, e.RecordType)
			}
			fmt.Fprintf(&b, " by %d\n", e.UserID)
		}
	}

	b.WriteString("\nUse /approve <user id> and /unapprove <user id> to manage access.")
	return model.Reply{Text: b.String()}
}
