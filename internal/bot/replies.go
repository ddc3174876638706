package bot

import (
	"errors"

	"zonebot/internal/model"
	"zonebot/internal/provider"
)

func replyMenu(admin bool) model.Reply {
	options := []model.Option{
		{Label: "Add record", Value: "menu:add"},
		{Label: "Remove record", Value: "menu:remove"},
		{Label: "Modify record", Value: "menu:modify"},
		{Label: "My records", Value: "menu:list"},
	}
	if admin {
		options = append(options, model.Option{Label: "Admin panel", Value: "menu:admin"})
	}
	return model.Reply{
		Text:    "Welcome to the DNS manager bot. Choose an option:",
		Options: options,
	}
}

func replyNotApproved() model.Reply {
	return model.Reply{Text: "You are not approved to use this bot."}
}

func replyNotOwner() model.Reply {
	return model.Reply{Text: "You don't own this record."}
}

func replyAskValue(recordType string) model.Reply {
	switch recordType {
	case "CNAME":
		return model.Reply{Text: "Enter the target hostname:"}
	default:
		return model.Reply{Text: "Enter the IP address:"}
	}
}

func replyAskNewValue(rec model.Record) model.Reply {
	prompt := "Enter the new IP address for " + rec.Name + ":"
	if rec.Type == "CNAME" {
		prompt = "Enter the new target hostname for " + rec.Name + ":"
	}
	return model.Reply{Text: prompt}
}

func replyBadValue(recordType string) model.Reply {
	switch recordType {
	case "A":
		return model.Reply{Text: "That is not a valid IPv4 address. Try again:"}
	case "AAAA":
		return model.Reply{Text: "That is not a valid IPv6 address. Try again:"}
	default:
		return model.Reply{Text: "That is not a valid hostname. Try again:"}
	}
}

// replyDrift surfaces a ledger/provider divergence instead of guessing a
// reconciliation: the entry stays in the ledger.
func replyDrift(rec model.Record) model.Reply {
	return model.Reply{Text: "The record " + rec.Name + " (" + rec.Type + ") no longer exists at the provider. " +
		"It may have been removed outside this bot; it remains tracked here until removed through the bot."}
}

func replyProviderFailure(err error) model.Reply {
	if errors.Is(err, provider.ErrUnavailable) {
		return model.Reply{Text: "The DNS provider is not responding right now. Please try again later."}
	}
	return model.Reply{Text: "The DNS provider rejected the request: " + err.Error()}
}
