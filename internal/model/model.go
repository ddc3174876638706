package model

import "time"

// Zone is a domain managed under the provider account.
type Zone struct {
	ID   string
	Name string
}

// Record mirrors a DNS record this system created on the provider. The
// provider remains the source of truth; a Record held in the ledger is the
// proof that the owning user created it through this system.
type Record struct {
	ID       string
	OwnerID  int64
	ZoneID   string
	ZoneName string
	Name     string // fully-qualified
	Type     string
	Content  string
	TTL      int
	Proxied  bool
}

type EventKind string

const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventButton  EventKind = "buttonPress"
)

// Event is the normalized inbound message from the chat platform. For
// commands Payload is the command name and Args its arguments, for text
// Payload is the message body, for button presses Payload is the option
// value that was pressed.
type Event struct {
	UserID  int64
	Kind    EventKind
	Payload string
	Args    []string
}

// Option is a selectable choice attached to a Reply.
type Option struct {
	Label string
	Value string
}

// Reply is the outgoing response. A zero Reply means nothing is sent.
type Reply struct {
	Text    string
	Options []Option
}

func (r Reply) Empty() bool {
	return r.Text == "" && len(r.Options) == 0
}

type AuditEntry struct {
	ID         int64
	UserID     int64
	Action     string
	ZoneName   string
	RecordName string
	RecordType string
	Detail     string
	CreatedAt  time.Time
}
