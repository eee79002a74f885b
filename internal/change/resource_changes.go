package change

import (
	"context"
	"database/sql"
	"time"

	"agora/internal/domain"
	"agora/internal/repo"
)

// Resource change type ids.
const (
	TypeAddResource        = "resource.add"
	TypeChangeResourceName = "resource.change_name"
	TypeAddResourceItem    = "resource.add_item"
	TypeRemoveResourceItem = "resource.remove_item"
	TypeRemoveResource     = "resource.remove"
)

// AddResource creates a resource owned by the targeted community.
type AddResource struct {
	Name string `json:"name"`
}

func (c *AddResource) Type() string       { return TypeAddResource }
func (c *AddResource) Foundational() bool { return false }

func (c *AddResource) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	if _, err := communityTarget(target); err != nil {
		return err
	}
	if c.Name == "" {
		return domain.Validationf("resource name must not be empty")
	}
	return nil
}

func (c *AddResource) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	comm, err := communityTarget(target)
	if err != nil {
		return nil, err
	}
	res := &domain.Resource{
		Name:        c.Name,
		CommunityID: comm.ID,
		Items:       []string{},
		Governing:   true,
		CreatedBy:   actor,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}
	if err := r.InsertResourceTx(ctx, tx, res); err != nil {
		return nil, err
	}
	return res, nil
}

type ChangeResourceName struct {
	Name string `json:"name"`
}

func (c *ChangeResourceName) Type() string       { return TypeChangeResourceName }
func (c *ChangeResourceName) Foundational() bool { return false }

func (c *ChangeResourceName) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	if _, err := resourceTarget(target); err != nil {
		return err
	}
	if c.Name == "" {
		return domain.Validationf("resource name must not be empty")
	}
	return nil
}

func (c *ChangeResourceName) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	res, err := resourceTarget(target)
	if err != nil {
		return nil, err
	}
	res.Name = c.Name
	if err := r.UpdateResourceTx(ctx, tx, res); err != nil {
		return nil, err
	}
	return res, nil
}

type AddResourceItem struct {
	Item string `json:"item"`
}

func (c *AddResourceItem) Type() string       { return TypeAddResourceItem }
func (c *AddResourceItem) Foundational() bool { return false }

func (c *AddResourceItem) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	res, err := resourceTarget(target)
	if err != nil {
		return err
	}
	if c.Item == "" {
		return domain.Validationf("item must not be empty")
	}
	for _, it := range res.Items {
		if it == c.Item {
			return domain.Validationf("item %s is already on the resource", c.Item)
		}
	}
	return nil
}

func (c *AddResourceItem) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	res, err := resourceTarget(target)
	if err != nil {
		return nil, err
	}
	res.Items = append(res.Items, c.Item)
	if err := r.UpdateResourceTx(ctx, tx, res); err != nil {
		return nil, err
	}
	return res, nil
}

type RemoveResourceItem struct {
	Item string `json:"item"`
}

func (c *RemoveResourceItem) Type() string       { return TypeRemoveResourceItem }
func (c *RemoveResourceItem) Foundational() bool { return false }

func (c *RemoveResourceItem) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	res, err := resourceTarget(target)
	if err != nil {
		return err
	}
	for _, it := range res.Items {
		if it == c.Item {
			return nil
		}
	}
	return domain.Validationf("item %s is not on the resource", c.Item)
}

func (c *RemoveResourceItem) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	res, err := resourceTarget(target)
	if err != nil {
		return nil, err
	}
	kept := res.Items[:0]
	for _, it := range res.Items {
		if it != c.Item {
			kept = append(kept, it)
		}
	}
	res.Items = kept
	if err := r.UpdateResourceTx(ctx, tx, res); err != nil {
		return nil, err
	}
	return res, nil
}

type RemoveResource struct{}

func (c *RemoveResource) Type() string       { return TypeRemoveResource }
func (c *RemoveResource) Foundational() bool { return false }

func (c *RemoveResource) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	_, err := resourceTarget(target)
	return err
}

func (c *RemoveResource) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	res, err := resourceTarget(target)
	if err != nil {
		return nil, err
	}
	if err := r.DeleteResourceTx(ctx, tx, res.ID); err != nil {
		return nil, err
	}
	return res, nil
}
