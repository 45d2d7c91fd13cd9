package core_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
)

type enrolment struct {
	Matricule    string `json:"matricule" validate:"required,code"`
	Capacity     *int   `json:"capacity" validate:"omitempty,capacity"`
	AcademicYear string `json:"academic_year" validate:"omitempty,schoolyear"`
	BirthDate    string `json:"birth_date" validate:"omitempty,date"`
	Phone        string `json:"phone" validate:"omitempty,phone"`
	ClassID      string `json:"class_id" validate:"omitempty,uuid"`
	Sex          string `json:"sex" validate:"omitempty,oneof=M F"`
	Password     string `json:"password" validate:"omitempty,min=8"`
	Confirm      string `json:"password_confirm" validate:"eqfield=Password"`
}

func fieldMessages(t *testing.T, v interface{}) map[string]string {
	t.Helper()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	msgs := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msgs[fe.Field()] = fe.Translate(translator)
	}
	return msgs
}

func TestInitValidators(t *testing.T) {
	intp := func(n int) *int { return &n }

	tests := []struct {
		name string
		in   enrolment
		want map[string]string
	}{
		{
			name: "valid",
			in: enrolment{
				Matricule: "S_2025_001", Capacity: intp(30), AcademicYear: "2025-2026", BirthDate: "2014-03-09",
				Phone: "+243 812 345 678", ClassID: "5d0c4b1e-7f55-4a0e-9f0b-2f3f0f1a2b3c", Sex: "F",
				Password: "password123", Confirm: "password123",
			},
		},
		{name: "unlimited capacity", in: enrolment{Matricule: "S1", Capacity: intp(0)}},
		{
			name: "school codes",
			in:   enrolment{Matricule: "S-001"},
			want: map[string]string{"matricule": "only letters, digits and underscores are allowed"},
		},
		{
			name: "capacity out of range",
			in:   enrolment{Matricule: "S1", Capacity: intp(101)},
			want: map[string]string{"capacity": "capacity must be between 0 (unlimited) and 100"},
		},
		{
			name: "negative capacity",
			in:   enrolment{Matricule: "S1", Capacity: intp(-1)},
			want: map[string]string{"capacity": "capacity must be between 0 (unlimited) and 100"},
		},
		{
			name: "school years follow each other",
			in:   enrolment{Matricule: "S1", AcademicYear: "2025-2027"},
			want: map[string]string{"academic_year": "use the YYYY-YYYY format, with consecutive years"},
		},
		{
			name: "dates and phones",
			in:   enrolment{Matricule: "S1", BirthDate: "09/03/2014", Phone: "call me"},
			want: map[string]string{"birth_date": "use the YYYY-MM-DD format", "phone": "invalid phone number"},
		},
		{
			name: "identifiers and choices",
			in:   enrolment{Matricule: "S1", ClassID: "6A", Sex: "X"},
			want: map[string]string{"class_id": "unknown identifier", "sex": "must be one of: M, F"},
		},
		{
			name: "passwords",
			in:   enrolment{Matricule: "S1", Password: "short", Confirm: "shorter"},
			want: map[string]string{"password": "must be at least 8 characters", "password_confirm": "passwords do not match"},
		},
		{
			name: "required",
			in:   enrolment{},
			want: map[string]string{"matricule": "this field is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fieldMessages(t, tt.in))
		})
	}
}

func TestValidationError(t *testing.T) {
	errFull := core.NewFieldError("class_id", assert.AnError)

	verr, ok := core.AsValidationError(errFull)
	require.True(t, ok)
	assert.Equal(t, assert.AnError, verr.Err)
	assert.ErrorIs(t, errFull, assert.AnError)

	msg, ok := verr.Message("class_id")
	assert.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), msg)

	_, ok = verr.Message("matricule")
	assert.False(t, ok)

	plain := core.InvalidField("scheduled_at", "cannot schedule in the past")
	assert.Equal(t, "scheduled_at: cannot schedule in the past", plain.Error())
	assert.Equal(t, map[string]string{"scheduled_at": "cannot schedule in the past"}, plain.(*core.ValidationError).FieldMessages())

	_, ok = core.AsValidationError(assert.AnError)
	assert.False(t, ok)
}
