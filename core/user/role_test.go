package user

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr error
	}{
		{in: "PARENT", want: RoleParent},
		{in: "teacher", want: RoleTeacher},
		{in: " Admin ", want: RoleAdmin},
		{in: "developer", want: RoleDeveloper},
		{in: "", want: RoleUnknown, wantErr: ErrUnknownRole},
		{in: "student", want: RoleUnknown, wantErr: ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_Level(t *testing.T) {
	want := map[Role]int{
		RoleUnknown:   0,
		RoleParent:    1,
		RoleTeacher:   2,
		RoleAdmin:     3,
		RoleDeveloper: 4,
		Role(42):      0,
	}
	for role, lvl := range want {
		assert.Equal(t, lvl, role.Level(), role.String())
	}
}

func TestRole_Satisfies(t *testing.T) {
	// a role satisfies every requirement at or below its own level
	for _, r1 := range AllRoles {
		for _, r2 := range AllRoles {
			if r1.Level() >= r2.Level() {
				assert.True(t, r1.Satisfies(r2), "%s should satisfy %s", r1, r2)
			} else {
				assert.False(t, r1.Satisfies(r2), "%s should not satisfy %s", r1, r2)
			}
		}
	}

	tests := []struct {
		name     string
		role     Role
		required []Role
		want     bool
	}{
		{name: "teacher denied admin", role: RoleTeacher, required: []Role{RoleAdmin}, want: false},
		{name: "admin allowed teacher", role: RoleAdmin, required: []Role{RoleTeacher}, want: true},
		{name: "max of required", role: RoleTeacher, required: []Role{RoleParent, RoleAdmin}, want: false},
		{name: "no requirement, known role", role: RoleParent, want: true},
		{name: "no requirement, unknown role", role: RoleUnknown, want: false},
		{name: "unknown required by nobody", role: RoleUnknown, required: []Role{RoleUnknown}, want: false},
		{name: "out of range role", role: Role(42), required: []Role{RoleParent}, want: false},
		{name: "developer allowed admin", role: RoleDeveloper, required: []Role{RoleAdmin}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Satisfies(tt.required...))
		})
	}
}

func TestRole_In(t *testing.T) {
	assert.True(t, RoleTeacher.In(RoleParent, RoleTeacher))
	assert.False(t, RoleAdmin.In(RoleTeacher))
	assert.False(t, RoleAdmin.In())
	assert.False(t, RoleUnknown.In(RoleUnknown))
}

func TestMaxLevel(t *testing.T) {
	assert.Equal(t, 0, MaxLevel())
	assert.Equal(t, 3, MaxLevel(RoleParent, RoleAdmin, RoleTeacher))
}

func TestRole_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleTeacher})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"role":"TEACHER"}`, string(data))

	var v struct {
		Role Role `json:"role"`
	}
	assert.NoError(t, json.Unmarshal([]byte(`{"role":"admin"}`), &v))
	assert.Equal(t, RoleAdmin, v.Role)

	assert.NoError(t, json.Unmarshal([]byte(`{"role":"lol"}`), &v))
	assert.Equal(t, RoleUnknown, v.Role)
}

func TestRole_Scan(t *testing.T) {
	var r Role
	assert.NoError(t, r.Scan("PARENT"))
	assert.Equal(t, RoleParent, r)
	assert.NoError(t, r.Scan([]byte("DEVELOPER")))
	assert.Equal(t, RoleDeveloper, r)
	assert.NoError(t, r.Scan(nil))
	assert.Equal(t, RoleUnknown, r)
	assert.Error(t, r.Scan(12))

	val, err := RoleAdmin.Value()
	assert.NoError(t, err)
	assert.Equal(t, "ADMIN", val)
}
