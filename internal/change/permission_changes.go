package change

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agora/internal/community"
	"agora/internal/domain"
	"agora/internal/perm"
	"agora/internal/repo"
)

// Permission change type ids.
const (
	TypeAddPermission         = "permission.add"
	TypeRemovePermission      = "permission.remove"
	TypeAddPermissionActor    = "permission.add_actor"
	TypeRemovePermissionActor = "permission.remove_actor"
	TypeAddPermissionRole     = "permission.add_role"
	TypeRemovePermissionRole  = "permission.remove_role"
	TypeSetPermissionInverse  = "permission.set_inverse"
	TypeEnableAnyone          = "permission.enable_anyone"
	TypeDisableAnyone         = "permission.disable_anyone"
)

// AddPermission grants a change type on the targeted object. The permission
// is owned by the target's owner community.
type AddPermission struct {
	ChangeType    string         `json:"change_type"`
	Actors        []int64        `json:"actors,omitempty"`
	Roles         []string       `json:"roles,omitempty"`
	Anyone        bool           `json:"anyone,omitempty"`
	Inverse       bool           `json:"inverse,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

func (c *AddPermission) Type() string       { return TypeAddPermission }
func (c *AddPermission) Foundational() bool { return false }

func (c *AddPermission) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	if !Known(c.ChangeType) {
		return domain.Validationf("unknown change type %s", c.ChangeType)
	}
	for _, a := range c.Actors {
		if a <= 0 {
			return domain.Validationf("invalid actor id %d", a)
		}
	}
	comm, err := r.GetCommunityTx(ctx, tx, target.OwnerCommunityID())
	if err != nil {
		return err
	}
	for _, role := range c.Roles {
		if !roleExists(&comm, role) {
			return domain.Validationf("role %s does not exist in community %s", role, comm.Name)
		}
	}
	return nil
}

func (c *AddPermission) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p := &perm.Permission{
		Target:        target.TargetRef(),
		CommunityID:   target.OwnerCommunityID(),
		ChangeType:    c.ChangeType,
		Actors:        c.Actors,
		Roles:         c.Roles,
		Anyone:        c.Anyone,
		Inverse:       c.Inverse,
		Configuration: c.Configuration,
		CreatedBy:     actor,
		CreatedAt:     now.UTC().Format(time.RFC3339),
	}
	if err := r.InsertPermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type RemovePermission struct{}

func (c *RemovePermission) Type() string       { return TypeRemovePermission }
func (c *RemovePermission) Foundational() bool { return false }

func (c *RemovePermission) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	_, err := permissionTarget(target)
	return err
}

func (c *RemovePermission) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	// A condition set on the permission goes with it.
	if err := r.DeleteTemplateBySourceTx(ctx, tx, domain.SourceForPermission(p.ID)); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := r.DeletePermissionTx(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

type AddPermissionActor struct {
	Actor int64 `json:"actor"`
}

func (c *AddPermissionActor) Type() string       { return TypeAddPermissionActor }
func (c *AddPermissionActor) Foundational() bool { return false }

func (c *AddPermissionActor) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if c.Actor <= 0 {
		return domain.Validationf("invalid actor id %d", c.Actor)
	}
	if p.HasActor(c.Actor) {
		return domain.Validationf("actor %d is already on the permission", c.Actor)
	}
	return nil
}

func (c *AddPermissionActor) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	if err := p.AddActor(c.Actor); err != nil {
		return nil, err
	}
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type RemovePermissionActor struct {
	Actor int64 `json:"actor"`
}

func (c *RemovePermissionActor) Type() string       { return TypeRemovePermissionActor }
func (c *RemovePermissionActor) Foundational() bool { return false }

func (c *RemovePermissionActor) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if !p.HasActor(c.Actor) {
		return domain.Validationf("actor %d is not on the permission", c.Actor)
	}
	return nil
}

func (c *RemovePermissionActor) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	if err := p.RemoveActor(c.Actor); err != nil {
		return nil, err
	}
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type AddPermissionRole struct {
	Role string `json:"role"`
}

func (c *AddPermissionRole) Type() string       { return TypeAddPermissionRole }
func (c *AddPermissionRole) Foundational() bool { return false }

func (c *AddPermissionRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if p.HasRole(c.Role) {
		return domain.Validationf("role %s is already on the permission", c.Role)
	}
	comm, err := r.GetCommunityTx(ctx, tx, p.CommunityID)
	if err != nil {
		return err
	}
	if !roleExists(&comm, c.Role) {
		return domain.Validationf("role %s does not exist in community %s", c.Role, comm.Name)
	}
	return nil
}

func (c *AddPermissionRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	if err := p.AddRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type RemovePermissionRole struct {
	Role string `json:"role"`
}

func (c *RemovePermissionRole) Type() string       { return TypeRemovePermissionRole }
func (c *RemovePermissionRole) Foundational() bool { return false }

func (c *RemovePermissionRole) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if !p.HasRole(c.Role) {
		return domain.Validationf("role %s is not on the permission", c.Role)
	}
	return nil
}

func (c *RemovePermissionRole) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	if err := p.RemoveRole(c.Role); err != nil {
		return nil, err
	}
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type SetPermissionInverse struct {
	Inverse bool `json:"inverse"`
}

func (c *SetPermissionInverse) Type() string       { return TypeSetPermissionInverse }
func (c *SetPermissionInverse) Foundational() bool { return false }

func (c *SetPermissionInverse) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if p.Inverse == c.Inverse {
		return domain.Validationf("inverse is already %t", c.Inverse)
	}
	return nil
}

func (c *SetPermissionInverse) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	p.Inverse = c.Inverse
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type EnableAnyone struct{}

func (c *EnableAnyone) Type() string       { return TypeEnableAnyone }
func (c *EnableAnyone) Foundational() bool { return false }

func (c *EnableAnyone) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if p.Anyone {
		return domain.Validationf("anyone is already enabled")
	}
	return nil
}

func (c *EnableAnyone) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	p.Anyone = true
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type DisableAnyone struct{}

func (c *DisableAnyone) Type() string       { return TypeDisableAnyone }
func (c *DisableAnyone) Foundational() bool { return false }

func (c *DisableAnyone) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	p, err := permissionTarget(target)
	if err != nil {
		return err
	}
	if !p.Anyone {
		return domain.Validationf("anyone is already disabled")
	}
	return nil
}

func (c *DisableAnyone) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	p, err := permissionTarget(target)
	if err != nil {
		return nil, err
	}
	p.Anyone = false
	if err := r.UpdatePermissionTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// roleExists accepts the protected role names as well as custom roles.
func roleExists(comm *community.Community, role string) bool {
	switch role {
	case community.RoleMembers, community.RoleOwners, community.RoleGovernors:
		return true
	}
	for _, name := range comm.Roles.RoleNames() {
		if name == role {
			return true
		}
	}
	return false
}
