package models

import (
	"encoding/json"
	"sort"
)

type Permission string

const (
	PermViewAnalytics    Permission = "view-analytics"
	PermManageUsers      Permission = "manage-users"
	PermSystemMonitoring Permission = "system-monitoring"
	PermDownloadReports  Permission = "download-reports"
	PermPanelAccess      Permission = "panel-access"
)

// AllPermissions is the full grant given to every admin session.
func AllPermissions() []Permission {
	return []Permission{
		PermViewAnalytics,
		PermManageUsers,
		PermSystemMonitoring,
		PermDownloadReports,
		PermPanelAccess,
	}
}

// PermissionSet is an unordered set of permissions. The zero value is an
// empty set ready to use for reads; Add allocates on demand.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s *PermissionSet) Add(perms ...Permission) {
	if *s == nil {
		*s = make(PermissionSet, len(perms))
	}
	for _, p := range perms {
		(*s)[p] = struct{}{}
	}
}

// ContainsAll reports whether s is a superset of required.
func (s PermissionSet) ContainsAll(required PermissionSet) bool {
	for p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Missing returns the members of required not held by s, sorted.
func (s PermissionSet) Missing(required PermissionSet) []Permission {
	var out []Permission
	for p := range required {
		if !s.Has(p) {
			out = append(out, p)
		}
	}
	sortPermissions(out)
	return out
}

func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
}
