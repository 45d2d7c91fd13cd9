package message

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

// Kind says what a message is addressed to. Students have no account: their parent reads for them.
type Kind uint8

const (
	KindParent Kind = iota
	KindStudent
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindParent:
		return "parent"
	case KindStudent:
		return "student"
	case KindClass:
		return "class"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parent", "":
		return KindParent, true
	case "student":
		return KindStudent, true
	case "class":
		return KindClass, true
	default:
		return KindParent, false
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	kind, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("invalid message type %q", text)
	}
	*k = kind
	return nil
}

func (k Kind) Value() (driver.Value, error) { return k.String(), nil }

func (k *Kind) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return k.UnmarshalText([]byte(v))
	case []byte:
		return k.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into message.Kind", src)
	}
}

type Status uint8

const (
	StatusDraft Status = iota
	StatusSent
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusSent:
		return "sent"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draft":
		return StatusDraft, true
	case "sent":
		return StatusSent, true
	case "error":
		return StatusError, true
	default:
		return StatusDraft, false
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	st, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("invalid message status %q", text)
	}
	*s = st
	return nil
}

func (s Status) Value() (driver.Value, error) { return s.String(), nil }

func (s *Status) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into message.Status", src)
	}
}

type Message struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Kind     Kind   `json:"type"`
	ToID     string `json:"to_id"`
	To       string `json:"to"` // display name of ToID, resolved when the message is written
	Subject  string `json:"subject"`
	Content  string `json:"content"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	// RecipientIDs are the parent accounts that read the message in their inbox.
	RecipientIDs []string  `json:"-"`
	SentAt       time.Time `json:"sent_at,omitempty"` // UTC
	CreatedAt    time.Time `json:"date"`              // UTC
	UpdatedAt    time.Time `json:"updated_at"`        // UTC
}

// ReadableBy reports whether userID wrote or received m.
func (m Message) ReadableBy(userID string) bool {
	if userID == "" {
		return false
	}
	if m.SenderID == userID {
		return true
	}
	if m.Status != StatusSent {
		return false
	}
	for _, id := range m.RecipientIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Filter selects messages; zero fields match everything.
type Filter struct {
	SenderID    string
	RecipientID string
	Status      *Status
}

func (f Filter) Match(m Message) bool {
	if f.SenderID != "" && m.SenderID != f.SenderID {
		return false
	}
	if f.Status != nil && m.Status != *f.Status {
		return false
	}
	if f.RecipientID != "" {
		for _, id := range m.RecipientIDs {
			if id == f.RecipientID {
				return true
			}
		}
		return false
	}
	return true
}

// Recipient is someone a teacher may write to.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"type"`
}

// NewMessage contains information needed to write a Message. It is sent right away unless Draft is set.
type NewMessage struct {
	Kind    Kind   `json:"type"`
	ToID    string `json:"to_id" validate:"required,uuid"`
	Subject string `json:"subject" validate:"notblank,max=200"`
	Content string `json:"content" validate:"notblank"`
	Draft   bool   `json:"draft"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.ToID = strings.TrimSpace(nm.ToID)
	nm.Subject = core.CleanString(nm.Subject)
	nm.Content = strings.TrimSpace(nm.Content)
	return validate.Struct(nm)
}
