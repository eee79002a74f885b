package change

import (
	"context"
	"database/sql"
	"time"

	"agora/internal/domain"
	"agora/internal/perm"
	"agora/internal/repo"
)

// Community change type ids.
const (
	TypeChangeName           = "community.change_name"
	TypeAddMembers           = "community.add_members"
	TypeRemoveMembers        = "community.remove_members"
	TypeAddGovernor          = "community.add_governor"
	TypeRemoveGovernor       = "community.remove_governor"
	TypeAddGovernorRole      = "community.add_governor_role"
	TypeRemoveGovernorRole   = "community.remove_governor_role"
	TypeAddOwner             = "community.add_owner"
	TypeRemoveOwner          = "community.remove_owner"
	TypeAddOwnerRole         = "community.add_owner_role"
	TypeRemoveOwnerRole      = "community.remove_owner_role"
	TypeAddRole              = "community.add_role"
	TypeRemoveRole           = "community.remove_role"
	TypeAddPeopleToRole      = "community.add_people_to_role"
	TypeRemovePeopleFromRole = "community.remove_people_from_role"
)

type ChangeName struct {
	Name string `json:"name"`
}

func (c *ChangeName) Type() string       { return TypeChangeName }
func (c *ChangeName) Foundational() bool { return false }

func (c *ChangeName) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	if _, err := communityTarget(target); err != nil {
		return err
	}
	if c.Name == "" {
		return domain.Validationf("community name must not be empty")
	}
	return nil
}

func (c *ChangeName) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	comm.Name = c.Name
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type AddMembers struct {
	Members []int64 `json:"members"`
}

func (c *AddMembers) Type() string       { return TypeAddMembers }
func (c *AddMembers) Foundational() bool { return false }

func (c *AddMembers) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddMembers(c.Members)
}

func (c *AddMembers) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddMembers(c.Members); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

// CheckConfiguration honors a permission's self_only configuration: actors
// may then only add themselves.
func (c *AddMembers) CheckConfiguration(actor int64, p *perm.Permission) (bool, string) {
	if configFlag(p, "self_only") {
		if len(c.Members) != 1 || c.Members[0] != actor {
			return false, "self_only is set, so actors may only add themselves"
		}
	}
	return true, ""
}

type RemoveMembers struct {
	Members []int64 `json:"members"`
}

func (c *RemoveMembers) Type() string       { return TypeRemoveMembers }
func (c *RemoveMembers) Foundational() bool { return false }

func (c *RemoveMembers) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveMembers(c.Members)
}

func (c *RemoveMembers) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveMembers(c.Members); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

func (c *RemoveMembers) CheckConfiguration(actor int64, p *perm.Permission) (bool, string) {
	if configFlag(p, "self_only") {
		if len(c.Members) != 1 || c.Members[0] != actor {
			return false, "self_only is set, so actors may only remove themselves"
		}
	}
	return true, ""
}

type AddGovernor struct {
	Governor int64 `json:"governor"`
}

func (c *AddGovernor) Type() string       { return TypeAddGovernor }
func (c *AddGovernor) Foundational() bool { return false }

func (c *AddGovernor) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddGovernor(c.Governor)
}

func (c *AddGovernor) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddGovernor(c.Governor); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type RemoveGovernor struct {
	Governor int64 `json:"governor"`
}

func (c *RemoveGovernor) Type() string       { return TypeRemoveGovernor }
func (c *RemoveGovernor) Foundational() bool { return false }

func (c *RemoveGovernor) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveGovernor(c.Governor)
}

func (c *RemoveGovernor) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveGovernor(c.Governor); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type AddGovernorRole struct {
	Role string `json:"role"`
}

func (c *AddGovernorRole) Type() string       { return TypeAddGovernorRole }
func (c *AddGovernorRole) Foundational() bool { return false }

func (c *AddGovernorRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddGovernorRole(c.Role)
}

func (c *AddGovernorRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddGovernorRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type RemoveGovernorRole struct {
	Role string `json:"role"`
}

func (c *RemoveGovernorRole) Type() string       { return TypeRemoveGovernorRole }
func (c *RemoveGovernorRole) Foundational() bool { return false }

func (c *RemoveGovernorRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveGovernorRole(c.Role)
}

func (c *RemoveGovernorRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveGovernorRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

// Owner changes are foundational: they alter who holds ultimate authority.

type AddOwner struct {
	Owner int64 `json:"owner"`
}

func (c *AddOwner) Type() string       { return TypeAddOwner }
func (c *AddOwner) Foundational() bool { return true }

func (c *AddOwner) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddOwner(c.Owner)
}

func (c *AddOwner) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddOwner(c.Owner); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type RemoveOwner struct {
	Owner int64 `json:"owner"`
}

func (c *RemoveOwner) Type() string       { return TypeRemoveOwner }
func (c *RemoveOwner) Foundational() bool { return true }

func (c *RemoveOwner) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveOwner(c.Owner)
}

func (c *RemoveOwner) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveOwner(c.Owner); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type AddOwnerRole struct {
	Role string `json:"role"`
}

func (c *AddOwnerRole) Type() string       { return TypeAddOwnerRole }
func (c *AddOwnerRole) Foundational() bool { return true }

func (c *AddOwnerRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddOwnerRole(c.Role)
}

func (c *AddOwnerRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddOwnerRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type RemoveOwnerRole struct {
	Role string `json:"role"`
}

func (c *RemoveOwnerRole) Type() string       { return TypeRemoveOwnerRole }
func (c *RemoveOwnerRole) Foundational() bool { return true }

func (c *RemoveOwnerRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveOwnerRole(c.Role)
}

func (c *RemoveOwnerRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveOwnerRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type AddRole struct {
	Role string `json:"role"`
}

func (c *AddRole) Type() string       { return TypeAddRole }
func (c *AddRole) Foundational() bool { return false }

func (c *AddRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddRole(c.Role)
}

func (c *AddRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type RemoveRole struct {
	Role string `json:"role"`
}

func (c *RemoveRole) Type() string       { return TypeRemoveRole }
func (c *RemoveRole) Foundational() bool { return false }

func (c *RemoveRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemoveRole(c.Role)
}

func (c *RemoveRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemoveRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

type AddPeopleToRole struct {
	Role   string  `json:"role"`
	People []int64 `json:"people"`
}

func (c *AddPeopleToRole) Type() string       { return TypeAddPeopleToRole }
func (c *AddPeopleToRole) Foundational() bool { return false }

func (c *AddPeopleToRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.AddPeopleToRole(c.Role, c.People)
}

func (c *AddPeopleToRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.AddPeopleToRole(c.Role, c.People); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

func (c *AddPeopleToRole) CheckConfiguration(actor int64, p *perm.Permission) (bool, string) {
	if role, ok := p.Configuration["role_name"].(string); ok && role != "" && role != c.Role {
		return false, "this permission only covers the role " + role
	}
	return true, ""
}

type RemovePeopleFromRole struct {
	Role   string  `json:"role"`
	People []int64 `json:"people"`
}

func (c *RemovePeopleFromRole) Type() string       { return TypeRemovePeopleFromRole }
func (c *RemovePeopleFromRole) Foundational() bool { return false }

func (c *RemovePeopleFromRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	comm, err := communityTarget(target)
	if err != nil {
		return err
	}
	scratch := comm.Roles.Clone()
	return scratch.RemovePeopleFromRole(c.Role, c.People)
}

func (c *RemovePeopleFromRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	if err := comm.Roles.RemovePeopleFromRole(c.Role, c.People); err != nil {
		return nil, err
	}
	if err := r.UpdateCommunityTx(ctx, tx, comm); err != nil {
		return nil, err
	}
	return comm, nil
}

func (c *RemovePeopleFromRole) CheckConfiguration(actor int64, p *perm.Permission) (bool, string) {
	if role, ok := p.Configuration["role_name"].(string); ok && role != "" && role != c.Role {
		return false, "this permission only covers the role " + role
	}
	return true, ""
}
