// Package permissions enumerates the permission names this service defines,
// for the authorization boundary to list and assign.
package permissions

// ManageGroupSubsites allows administering a subsite's security-group links.
const ManageGroupSubsites = "SECURITY_SUBSITE_GROUP"

// Descriptor describes one grantable permission.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var registry = []Descriptor{
	{Name: ManageGroupSubsites, Description: "Manage subsites for groups"},
}

// All returns every registered permission descriptor.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// Known reports whether name is a registered permission.
func Known(name string) bool {
	for _, d := range registry {
		if d.Name == name {
			return true
		}
	}
	return false
}
