package community

import "agora/internal/domain"

// Community is the root governable entity. Communities own themselves.
type Community struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Roles        Registry `json:"roles"`
	Foundational bool     `json:"foundational_permission_enabled"`
	Governing    bool     `json:"governing_permission_enabled"`
	CreatedBy    int64    `json:"created_by"`
	CreatedAt    string   `json:"created_at"`
}

func (c *Community) TargetRef() domain.Ref {
	return domain.Ref{Kind: domain.KindCommunity, ID: c.ID}
}
func (c *Community) DisplayName() string       { return c.Name }
func (c *Community) OwnerCommunityID() int64   { return c.ID }
func (c *Community) CreatorID() int64          { return c.CreatedBy }
func (c *Community) FoundationalEnabled() bool { return c.Foundational }
func (c *Community) GoverningEnabled() bool    { return c.Governing }
