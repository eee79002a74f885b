package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agora/internal/community"
	"agora/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanCommunity(scan func(dest ...any) error) (community.Community, error) {
	var c community.Community
	var rolesJSON string
	var foundational, governing int
	err := scan(&c.ID, &c.Name, &rolesJSON, &foundational, &governing, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(rolesJSON), &c.Roles); err != nil {
		return c, fmt.Errorf("decode community %d roles: %w", c.ID, err)
	}
	c.Foundational = foundational != 0
	c.Governing = governing != 0
	return c, nil
}

const communityCols = `id,name,roles_json,foundational_enabled,governing_enabled,created_by,created_at`

func (r Repo) InsertCommunityTx(ctx context.Context, tx *sql.Tx, c *community.Community) error {
	rolesJSON, err := json.Marshal(c.Roles)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO communities(name,roles_json,foundational_enabled,governing_enabled,created_by,created_at) VALUES (?,?,?,?,?,?)`,
		c.Name, string(rolesJSON), boolInt(c.Foundational), boolInt(c.Governing), c.CreatedBy, c.CreatedAt)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetCommunity(ctx context.Context, id int64) (community.Community, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+communityCols+` FROM communities WHERE id=?`, id)
	return scanCommunity(row.Scan)
}

func (r Repo) GetCommunityTx(ctx context.Context, tx *sql.Tx, id int64) (community.Community, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+communityCols+` FROM communities WHERE id=?`, id)
	return scanCommunity(row.Scan)
}

func (r Repo) UpdateCommunityTx(ctx context.Context, tx *sql.Tx, c *community.Community) error {
	rolesJSON, err := json.Marshal(c.Roles)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE communities SET name=?, roles_json=?, foundational_enabled=?, governing_enabled=? WHERE id=?`,
		c.Name, string(rolesJSON), boolInt(c.Foundational), boolInt(c.Governing), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCommunities(ctx context.Context) ([]community.Community, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+communityCols+` FROM communities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []community.Community
	for rows.Next() {
		c, err := scanCommunity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const resourceCols = `id,name,community_id,items_json,foundational_enabled,governing_enabled,created_by,created_at`

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var res domain.Resource
	var itemsJSON string
	var foundational, governing int
	err := scan(&res.ID, &res.Name, &res.CommunityID, &itemsJSON, &foundational, &governing, &res.CreatedBy, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &res.Items); err != nil {
		return res, fmt.Errorf("decode resource %d items: %w", res.ID, err)
	}
	res.Foundational = foundational != 0
	res.Governing = governing != 0
	return res, nil
}

func (r Repo) InsertResourceTx(ctx context.Context, tx *sql.Tx, res *domain.Resource) error {
	itemsJSON, err := marshalOrEmptyList(res.Items)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `INSERT INTO resources(name,community_id,items_json,foundational_enabled,governing_enabled,created_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		res.Name, res.CommunityID, itemsJSON, boolInt(res.Foundational), boolInt(res.Governing), res.CreatedBy, res.CreatedAt)
	if err != nil {
		return err
	}
	res.ID, err = result.LastInsertId()
	return err
}

func (r Repo) GetResource(ctx context.Context, id int64) (domain.Resource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resourceCols+` FROM resources WHERE id=?`, id)
	return scanResource(row.Scan)
}

func (r Repo) GetResourceTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Resource, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+resourceCols+` FROM resources WHERE id=?`, id)
	return scanResource(row.Scan)
}

func (r Repo) UpdateResourceTx(ctx context.Context, tx *sql.Tx, res *domain.Resource) error {
	itemsJSON, err := marshalOrEmptyList(res.Items)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `UPDATE resources SET name=?, community_id=?, items_json=?, foundational_enabled=?, governing_enabled=? WHERE id=?`,
		res.Name, res.CommunityID, itemsJSON, boolInt(res.Foundational), boolInt(res.Governing), res.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteResourceTx(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListResources(ctx context.Context, communityID int64) ([]domain.Resource, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+resourceCols+` FROM resources WHERE community_id=? ORDER BY id`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalOrEmptyList[T any](in []T) (string, error) {
	if len(in) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
