package perm

import (
	"agora/internal/domain"
)

// Permission grants a set of actors/roles the right to perform a change
// type on a target.
type Permission struct {
	ID            int64          `json:"id"`
	Target        domain.Ref     `json:"target"`
	CommunityID   int64          `json:"community_id"`
	ChangeType    string         `json:"change_type"`
	Actors        []int64        `json:"actors,omitempty"`
	Roles         []string       `json:"roles,omitempty"`
	Anyone        bool           `json:"anyone"`
	Inverse       bool           `json:"inverse"`
	IsActive      bool           `json:"is_active"`
	Configuration map[string]any `json:"configuration,omitempty"`
	CreatedBy     int64          `json:"created_by"`
	CreatedAt     string         `json:"created_at"`
}

func (p *Permission) TargetRef() domain.Ref     { return domain.Ref{Kind: domain.KindPermission, ID: p.ID} }
func (p *Permission) DisplayName() string       { return "permission for " + p.ChangeType }
func (p *Permission) OwnerCommunityID() int64   { return p.CommunityID }
func (p *Permission) CreatorID() int64          { return p.CreatedBy }
func (p *Permission) FoundationalEnabled() bool { return false }
func (p *Permission) GoverningEnabled() bool    { return true }

// Normalize enforces the auto-activation invariant: a permission with no
// actors, no roles and anyone=false is inactive; repopulating reactivates.
func (p *Permission) Normalize() {
	p.IsActive = p.Anyone || len(p.Actors) > 0 || len(p.Roles) > 0
}

func (p *Permission) HasActor(actor int64) bool {
	for _, a := range p.Actors {
		if a == actor {
			return true
		}
	}
	return false
}

func (p *Permission) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p *Permission) AddActor(actor int64) error {
	if actor <= 0 {
		return domain.Validationf("invalid actor id %d", actor)
	}
	if p.HasActor(actor) {
		return domain.Validationf("actor %d already has this permission", actor)
	}
	p.Actors = append(p.Actors, actor)
	p.Normalize()
	return nil
}

func (p *Permission) RemoveActor(actor int64) error {
	if !p.HasActor(actor) {
		return domain.Validationf("actor %d does not have this permission", actor)
	}
	out := p.Actors[:0]
	for _, a := range p.Actors {
		if a != actor {
			out = append(out, a)
		}
	}
	p.Actors = out
	p.Normalize()
	return nil
}

func (p *Permission) AddRole(role string) error {
	if role == "" {
		return domain.Validationf("role name must not be empty")
	}
	if p.HasRole(role) {
		return domain.Validationf("role %s already has this permission", role)
	}
	p.Roles = append(p.Roles, role)
	p.Normalize()
	return nil
}

func (p *Permission) RemoveRole(role string) error {
	if !p.HasRole(role) {
		return domain.Validationf("role %s does not have this permission", role)
	}
	out := p.Roles[:0]
	for _, r := range p.Roles {
		if r != role {
			out = append(out, r)
		}
	}
	p.Roles = out
	p.Normalize()
	return nil
}

// RoleChecker answers role membership questions for the community that owns
// a permission's target.
type RoleChecker interface {
	HasRole(role string, actor int64) bool
}

// Satisfies reports whether the actor matches the permission, and through
// which role. An empty role means a direct actor match; "anyone" means the
// permission is open. Inverse flips the boolean but keeps log fidelity by
// reporting "NOT <role>" when a role would otherwise have matched.
func Satisfies(roles RoleChecker, actor int64, p *Permission) (bool, string) {
	if p.Anyone {
		return true, "anyone"
	}
	matched := false
	matchedRole := ""
	if p.HasActor(actor) {
		matched = true
	} else {
		for _, role := range p.Roles {
			if roles.HasRole(role, actor) {
				matched = true
				matchedRole = role
				break
			}
		}
	}
	if p.Inverse {
		if matchedRole != "" {
			matchedRole = "NOT " + matchedRole
		}
		return !matched, matchedRole
	}
	return matched, matchedRole
}
