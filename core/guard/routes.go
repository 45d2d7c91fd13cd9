package guard

import (
	"sort"
	"strings"

	"github.com/trezcool/pueriangeli/core/user"
)

// Route is a navigation destination of the dashboards and who may reach it.
type Route struct {
	Path        string
	Title       string
	Requirement Requirement
}

// Routes is a static route map.
type Routes []Route

// AppRoutes is the dashboard route map.
var AppRoutes = Routes{
	{Path: "/admin", Title: "Admin dashboard", Requirement: Auth()},
	{Path: "/admin/users/new", Title: "New user", Requirement: Roles(user.RoleAdmin)},
	{Path: "/admin/teachers", Title: "Teachers", Requirement: Roles(user.RoleAdmin)},
	{Path: "/admin/parents", Title: "Parents", Requirement: Roles(user.RoleAdmin)},
	{Path: "/teacher", Title: "Teacher dashboard", Requirement: Auth()},
	{Path: "/teacher/assignments", Title: "Assignments", Requirement: Roles(user.RoleTeacher)},
	{Path: "/parent", Title: "Parent dashboard", Requirement: Auth()},
	{Path: "/parent/assignments", Title: "Assignments", Requirement: Roles(user.RoleParent)},
	{Path: "/profile", Title: "Profile", Requirement: Auth()},
}

// Lookup finds the route of path, trailing slashes ignored.
func (rs Routes) Lookup(path string) (Requirement, bool) {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range rs {
		if r.Path == path {
			return r.Requirement, true
		}
	}
	return Requirement{}, false
}

// Visible returns the routes role may navigate to, sorted by path.
func (rs Routes) Visible(role user.Role) Routes {
	if !role.IsKnown() {
		return Routes{}
	}
	visible := make(Routes, 0, len(rs))
	for _, r := range rs {
		if r.Requirement.Permits(role) {
			visible = append(visible, r)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Path < visible[j].Path })
	return visible
}
