package domain

import "fmt"

// Template set-on kinds.
const (
	SetOnPermission = "permission"
	SetOnOwner      = "owner"
	SetOnGovernor   = "governor"
)

// Condition source id helpers. A source is the permission or leadership
// role a condition template hangs off.

func SourceForPermission(permissionID int64) string {
	return fmt.Sprintf("perm_%d", permissionID)
}

func SourceForOwner(communityID int64) string {
	return fmt.Sprintf("owner_%d", communityID)
}

func SourceForGovernor(communityID int64) string {
	return fmt.Sprintf("governor_%d", communityID)
}

// PermissionGrant describes one permission a condition template assigns on
// the condition instances it spawns.
type PermissionGrant struct {
	ChangeType string   `json:"change_type"`
	Actors     []int64  `json:"actors,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Anyone     bool     `json:"anyone,omitempty"`
}
