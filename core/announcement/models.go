package announcement

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

type Audience uint8

const (
	AudienceAll Audience = iota
	AudienceTeachers
	AudienceParents
	AudienceClass
)

func (a Audience) String() string {
	switch a {
	case AudienceAll:
		return "all"
	case AudienceTeachers:
		return "teachers"
	case AudienceParents:
		return "parents"
	case AudienceClass:
		return "class"
	default:
		return fmt.Sprintf("Audience(%d)", uint8(a))
	}
}

func ParseAudience(s string) (Audience, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return AudienceAll, true
	case "teachers":
		return AudienceTeachers, true
	case "parents":
		return AudienceParents, true
	case "class":
		return AudienceClass, true
	default:
		return AudienceAll, false
	}
}

func (a Audience) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Audience) UnmarshalText(text []byte) error {
	aud, ok := ParseAudience(string(text))
	if !ok {
		return fmt.Errorf("invalid audience %q", text)
	}
	*a = aud
	return nil
}

func (a Audience) Value() (driver.Value, error) { return a.String(), nil }

func (a *Audience) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into announcement.Audience", src)
	}
}

type Status uint8

const (
	StatusDraft Status = iota
	StatusScheduled
	StatusSent
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusScheduled:
		return "scheduled"
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
	case "scheduled":
		return StatusScheduled, true
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
		return fmt.Errorf("invalid announcement status %q", text)
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
		return fmt.Errorf("cannot scan %T into announcement.Status", src)
	}
}

type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Audience    Audience  `json:"audience"`
	ClassID     string    `json:"class_id,omitempty"`
	Status      Status    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"` // UTC
	SentAt      time.Time `json:"sent_at,omitempty"`      // UTC
	AuthorID    string    `json:"author_id"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// IsDue reports whether a scheduled announcement should go out at now.
func (a Announcement) IsDue(now time.Time) bool {
	return a.Status == StatusScheduled && !a.ScheduledAt.After(now)
}

// NewAnnouncement contains information needed to create an Announcement.
// It is sent right away when Send is set, scheduled when ScheduledAt is set, a draft otherwise.
type NewAnnouncement struct {
	Title       string    `json:"title" validate:"notblank"`
	Content     string    `json:"content" validate:"notblank"`
	Audience    Audience  `json:"audience"`
	ClassID     string    `json:"class_id" validate:"omitempty,uuid"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Send        bool      `json:"send"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Content = strings.TrimSpace(na.Content)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Audience == AudienceClass && na.ClassID == "" {
		return core.InvalidField("class_id", "a class is required for this audience")
	}
	if na.Audience != AudienceClass {
		na.ClassID = ""
	}
	if !na.ScheduledAt.IsZero() && na.ScheduledAt.Before(time.Now()) {
		return core.InvalidField("scheduled_at", "cannot schedule in the past")
	}
	return nil
}
