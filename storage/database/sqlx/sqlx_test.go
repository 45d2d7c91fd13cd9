package sqlxrepos

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/coursework"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "other error", err: errors.New("boom"), want: false},
		{name: "other code", err: &pq.Error{Code: "23503"}, want: false},
		{name: "unique", err: &pq.Error{Code: "23505", Constraint: "user_email_key"}, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isUniqueViolation(tc.err))
		})
	}
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, " ORDER BY created_at DESC", orderClause(nil, "created_at DESC"))
	assert.Equal(t, " ORDER BY last_name ASC, created_at DESC", orderClause([]core.DBOrdering{
		{Field: "last_name", Ascending: true},
		{Field: "created_at"},
	}, "id"))
}

func TestNullables(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)

	assert.False(t, nullTime(time.Time{}).Valid)
	assert.True(t, fromNullTime(nullTime(time.Time{})).IsZero())

	now := time.Now()
	assert.True(t, now.Equal(fromNullTime(nullTime(now))))
}

func TestAssignmentRow(t *testing.T) {
	withoutDoc := coursework.Assignment{ID: "a1", Title: "Fractions"}
	assert.Nil(t, toAssignmentRow(withoutDoc).assignment().Document)

	withDoc := coursework.Assignment{
		ID:       "a2",
		Document: &coursework.Document{Key: "assignments/a2/sheet.pdf", FileName: "sheet.pdf", Size: 42},
	}
	got := toAssignmentRow(withDoc).assignment()
	if assert.NotNil(t, got.Document) {
		assert.Equal(t, *withDoc.Document, *got.Document)
	}
}
