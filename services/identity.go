package services

import (
	"errors"

	"paper-registry/auth"
	"paper-registry/models"
	"paper-registry/projector"
)

var (
	// ErrSignedOut: der Intent braucht eine angemeldete Identität.
	ErrSignedOut = errors.New("signed out")
	// ErrForbidden: Mitglieder dürfen nur eigene Records bearbeiten oder löschen.
	ErrForbidden = errors.New("not allowed for this identity")
	// ErrDisconnected: der Feed konnte nicht aufgebaut werden.
	ErrDisconnected = errors.New("disconnected from document store")
)

// IdentitySession hält die aktuelle Identität und ihre Rolle.
// Die Rolle kommt vom injizierten RoleResolver.
type IdentitySession struct {
	resolver auth.RoleResolver
	identity *auth.Identity
	role     auth.Role
}

// NewIdentitySession erstellt eine abgemeldete Session.
func NewIdentitySession(resolver auth.RoleResolver) *IdentitySession {
	return &IdentitySession{resolver: resolver}
}

// SetIdentity übernimmt eine neue Identität (nil = abgemeldet) und meldet,
// ob sich die Person geändert hat.
func (s *IdentitySession) SetIdentity(id *auth.Identity) bool {
	prev := s.identity
	if id == nil {
		s.identity = nil
		s.role = ""
		return prev != nil
	}
	cp := *id
	s.identity = &cp
	s.role = s.resolver.ResolveRole(cp)
	return prev == nil || prev.ID != cp.ID
}

// SignedIn meldet, ob eine Identität angemeldet ist.
func (s *IdentitySession) SignedIn() bool { return s.identity != nil }

// Identity gibt die angemeldete Identität zurück.
func (s *IdentitySession) Identity() (auth.Identity, bool) {
	if s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}

// Role ist leer, solange niemand angemeldet ist.
func (s *IdentitySession) Role() auth.Role { return s.role }

// IsAdmin meldet, ob die Identität die Admin-Rolle hat.
func (s *IdentitySession) IsAdmin() bool { return s.role == auth.RoleAdmin }

// DefaultView ist die Startansicht der Rolle.
func (s *IdentitySession) DefaultView() projector.Config {
	if s.identity == nil {
		return projector.Config{}
	}
	if s.IsAdmin() {
		return projector.AdminView()
	}
	return projector.OwnerView(s.identity.ID)
}

// Constrain erzwingt für Mitglieder die eigene Owner-Ansicht ohne Dedupe.
func (s *IdentitySession) Constrain(cfg projector.Config) projector.Config {
	if s.IsAdmin() {
		return cfg
	}
	id := ""
	if s.identity != nil {
		id = s.identity.ID
	}
	cfg.Scope = projector.OwnerScope(id)
	cfg.Dedupe = false
	return cfg
}

// CanModify meldet, ob die Identität r bearbeiten oder löschen darf.
func (s *IdentitySession) CanModify(r models.Record) bool {
	if s.identity == nil {
		return false
	}
	return s.IsAdmin() || r.OwnerIdentity == s.identity.ID
}
