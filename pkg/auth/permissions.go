package auth

import "strings"

type Action string

const (
	Read   Action = "read"
	Write  Action = "write"
	Delete Action = "delete"
	Admin  Action = "admin"
)

// Wildcard grants every permission.
const Wildcard = "*"

// PermissionChecker maps roles to "<module>:<action>" grants. A grant of
// "<module>:*" covers every action on the module, "*:<action>" covers the
// action on every module.
type PermissionChecker struct {
	grants map[string]map[string]bool
}

func NewPermissionChecker(roles map[string][]string) *PermissionChecker {
	pc := &PermissionChecker{grants: make(map[string]map[string]bool, len(roles))}
	for role, perms := range roles {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		pc.grants[role] = set
	}
	return pc
}

// DefaultRoles: OWNER and ADMIN can do anything, SUPPORT works tickets and
// chats and reads the rest, USER reads and writes its own records.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"OWNER":   {Wildcard},
		"ADMIN":   {Wildcard},
		"SUPPORT": {"*:read", "*:write", "tickets:*", "support-chat:*", "internal-chat:*", "reminders:*"},
		"USER":    {"*:read", "*:write", "internal-chat:*", "support-chat:read", "support-chat:write"},
	}
}

func (pc *PermissionChecker) Can(role, module string, action Action) bool {
	set := pc.grants[strings.ToUpper(role)]
	if len(set) == 0 {
		return false
	}
	return set[Wildcard] ||
		set[module+":"+string(action)] ||
		set[module+":"+Wildcard] ||
		set[Wildcard+":"+string(action)]
}
