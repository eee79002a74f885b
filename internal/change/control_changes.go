package change

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agora/internal/community"
	"agora/internal/domain"
	"agora/internal/repo"
)

// Authority control change type ids. These flip the per-target switches
// that decide which pipelines the target resolves through, so they always
// run through the foundational pipeline themselves.
const (
	TypeEnableFoundational  = "governance.enable_foundational"
	TypeDisableFoundational = "governance.disable_foundational"
	TypeEnableGoverning     = "governance.enable_governing"
	TypeDisableGoverning    = "governance.disable_governing"
	TypeChangeOwner         = "resource.change_owner"
)

// flaggedTarget narrows a target to the entities that persist their own
// pipeline flags.
func flaggedTarget(target domain.Target) (domain.Target, error) {
	switch target.(type) {
	case *community.Community, *domain.Resource:
		return target, nil
	}
	return nil, domain.Validationf("pipeline flags can only be changed on a community or a resource")
}

// saveFlags writes the target's pipeline flags back through the repo.
func saveFlags(ctx context.Context, tx *sql.Tx, r repo.Repo, target domain.Target, foundational, governing bool) (any, error) {
	switch t := target.(type) {
	case *community.Community:
		t.Foundational = foundational
		t.Governing = governing
		return t, r.UpdateCommunityTx(ctx, tx, t)
	case *domain.Resource:
		t.Foundational = foundational
		t.Governing = governing
		return t, r.UpdateResourceTx(ctx, tx, t)
	}
	return nil, domain.Validationf("pipeline flags can only be changed on a community or a resource")
}

type EnableFoundational struct{}

func (c *EnableFoundational) Type() string       { return TypeEnableFoundational }
func (c *EnableFoundational) Foundational() bool { return true }

func (c *EnableFoundational) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	t, err := flaggedTarget(target)
	if err != nil {
		return err
	}
	if t.FoundationalEnabled() {
		return domain.Validationf("the foundational pipeline is already enabled on %s", t.DisplayName())
	}
	return nil
}

func (c *EnableFoundational) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	return saveFlags(ctx, tx, r, target, true, target.GoverningEnabled())
}

type DisableFoundational struct{}

func (c *DisableFoundational) Type() string       { return TypeDisableFoundational }
func (c *DisableFoundational) Foundational() bool { return true }

func (c *DisableFoundational) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	t, err := flaggedTarget(target)
	if err != nil {
		return err
	}
	if !t.FoundationalEnabled() {
		return domain.Validationf("the foundational pipeline is already disabled on %s", t.DisplayName())
	}
	return nil
}

func (c *DisableFoundational) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	return saveFlags(ctx, tx, r, target, false, target.GoverningEnabled())
}

type EnableGoverning struct{}

func (c *EnableGoverning) Type() string       { return TypeEnableGoverning }
func (c *EnableGoverning) Foundational() bool { return true }

func (c *EnableGoverning) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	t, err := flaggedTarget(target)
	if err != nil {
		return err
	}
	if t.GoverningEnabled() {
		return domain.Validationf("the governing pipeline is already enabled on %s", t.DisplayName())
	}
	return nil
}

func (c *EnableGoverning) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	return saveFlags(ctx, tx, r, target, target.FoundationalEnabled(), true)
}

type DisableGoverning struct{}

func (c *DisableGoverning) Type() string       { return TypeDisableGoverning }
func (c *DisableGoverning) Foundational() bool { return true }

func (c *DisableGoverning) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	t, err := flaggedTarget(target)
	if err != nil {
		return err
	}
	if !t.GoverningEnabled() {
		return domain.Validationf("the governing pipeline is already disabled on %s", t.DisplayName())
	}
	return nil
}

func (c *DisableGoverning) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	return saveFlags(ctx, tx, r, target, target.FoundationalEnabled(), false)
}

// ChangeOwner moves a resource into another community.
type ChangeOwner struct {
	NewCommunityID int64 `json:"new_community_id"`
}

func (c *ChangeOwner) Type() string       { return TypeChangeOwner }
func (c *ChangeOwner) Foundational() bool { return true }

func (c *ChangeOwner) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	res, err := resourceTarget(target)
	if err != nil {
		return err
	}
	if c.NewCommunityID == 0 {
		return domain.Validationf("new_community_id is required")
	}
	if c.NewCommunityID == res.CommunityID {
		return domain.Validationf("the resource already belongs to community %d", c.NewCommunityID)
	}
	if _, err := r.GetCommunityTx(ctx, tx, c.NewCommunityID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Validationf("community %d does not exist", c.NewCommunityID)
		}
		return err
	}
	return nil
}

func (c *ChangeOwner) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	res, err := resourceTarget(target)
	if err != nil {
		return nil, err
	}
	res.CommunityID = c.NewCommunityID
	if err := r.UpdateResourceTx(ctx, tx, res); err != nil {
		return nil, err
	}
	return res, nil
}
