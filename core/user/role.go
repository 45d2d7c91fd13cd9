package user

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is a privilege tier. Roles are totally ordered by Level:
// a higher role satisfies every requirement of a lower one.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleParent
	RoleTeacher
	RoleAdmin
	RoleDeveloper
)

// role levels; fixed, lowest to highest
const (
	levelUnknown   = 0
	levelParent    = 1
	levelTeacher   = 2
	levelAdmin     = 3
	levelDeveloper = 4
)

var (
	AllRoles = []Role{RoleParent, RoleTeacher, RoleAdmin, RoleDeveloper}

	Roles = []RoleInfo{
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Developer", Value: RoleDeveloper},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// ParseRole parses a role name, ignoring case and surrounding whitespace.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PARENT":
		return RoleParent, nil
	case "TEACHER":
		return RoleTeacher, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "DEVELOPER":
		return RoleDeveloper, nil
	default:
		return RoleUnknown, ErrUnknownRole
	}
}

func (r Role) String() string {
	switch r {
	case RoleParent:
		return "PARENT"
	case RoleTeacher:
		return "TEACHER"
	case RoleAdmin:
		return "ADMIN"
	case RoleDeveloper:
		return "DEVELOPER"
	case RoleUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

func (r Role) Level() int {
	switch r {
	case RoleParent:
		return levelParent
	case RoleTeacher:
		return levelTeacher
	case RoleAdmin:
		return levelAdmin
	case RoleDeveloper:
		return levelDeveloper
	case RoleUnknown:
		return levelUnknown
	default:
		return levelUnknown
	}
}

func (r Role) IsKnown() bool { return r.Level() > levelUnknown }

// Satisfies reports whether r meets the highest of the required roles.
// An unknown role never satisfies anything; no required roles means any known role.
func (r Role) Satisfies(required ...Role) bool {
	if !r.IsKnown() {
		return false
	}
	return r.Level() >= MaxLevel(required...)
}

// In reports whether r is exactly one of roles.
func (r Role) In(roles ...Role) bool {
	if !r.IsKnown() {
		return false
	}
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

// MaxLevel returns the highest level among roles, 0 if there are none.
func MaxLevel(roles ...Role) int {
	var max int
	for _, role := range roles {
		if role.Level() > max {
			max = role.Level()
		}
	}
	return max
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText never fails: unknown names decode to RoleUnknown, which validation rejects.
func (r *Role) UnmarshalText(text []byte) error {
	*r, _ = ParseRole(string(text))
	return nil
}

func (r *Role) UnmarshalParam(param string) error {
	return r.UnmarshalText([]byte(param))
}

func (r Role) Value() (driver.Value, error) {
	return r.String(), nil
}

func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*r, _ = ParseRole(v)
	case []byte:
		*r, _ = ParseRole(string(v))
	case nil:
		*r = RoleUnknown
	default:
		return fmt.Errorf("cannot scan %T into user.Role", src)
	}
	return nil
}
