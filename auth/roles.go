package auth

import "strings"

// Role ist die Berechtigungsstufe einer Identität.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// RoleLookup liefert die Rollen eines Accounts beim Ausstellen eines Tokens.
type RoleLookup interface {
	RolesFor(email string) []string
}

// StaticRoleLookup vergibt die Admin-Rolle an eine konfigurierte Liste von E-Mails.
type StaticRoleLookup struct {
	admins map[string]bool
}

// NewStaticRoleLookup erstellt die Lookup-Tabelle; E-Mails werden case-insensitiv verglichen.
func NewStaticRoleLookup(adminEmails []string) *StaticRoleLookup {
	l := &StaticRoleLookup{admins: make(map[string]bool, len(adminEmails))}
	for _, e := range adminEmails {
		l.admins[normalizeEmail(e)] = true
	}
	return l
}

// RolesFor implementiert RoleLookup.
func (l *StaticRoleLookup) RolesFor(email string) []string {
	if l.admins[normalizeEmail(email)] {
		return []string{string(RoleMember), string(RoleAdmin)}
	}
	return []string{string(RoleMember)}
}

// RoleResolver bestimmt die wirksame Rolle einer angemeldeten Identität.
type RoleResolver interface {
	ResolveRole(id Identity) Role
}

// ClaimRoleResolver liest die Rolle aus dem roles-Claim des Tokens.
type ClaimRoleResolver struct{}

// ResolveRole implementiert RoleResolver.
func (ClaimRoleResolver) ResolveRole(id Identity) Role {
	for _, r := range id.Roles {
		if Role(r) == RoleAdmin {
			return RoleAdmin
		}
	}
	return RoleMember
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
