package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agora/internal/domain"
	"agora/internal/perm"
)

const permissionCols = `id,target_kind,target_id,community_id,change_type,actors_json,roles_json,anyone,inverse,is_active,configuration_json,created_by,created_at`

func scanPermission(scan func(dest ...any) error) (perm.Permission, error) {
	var p perm.Permission
	var actorsJSON, rolesJSON string
	var configJSON sql.NullString
	var anyone, inverse, active int
	err := scan(&p.ID, &p.Target.Kind, &p.Target.ID, &p.CommunityID, &p.ChangeType,
		&actorsJSON, &rolesJSON, &anyone, &inverse, &active, &configJSON, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(actorsJSON), &p.Actors); err != nil {
		return p, fmt.Errorf("decode permission %d actors: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &p.Roles); err != nil {
		return p, fmt.Errorf("decode permission %d roles: %w", p.ID, err)
	}
	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &p.Configuration); err != nil {
			return p, fmt.Errorf("decode permission %d configuration: %w", p.ID, err)
		}
	}
	p.Anyone = anyone != 0
	p.Inverse = inverse != 0
	p.IsActive = active != 0
	return p, nil
}

func permissionArgs(p *perm.Permission) ([]any, error) {
	actorsJSON, err := marshalOrEmptyList(p.Actors)
	if err != nil {
		return nil, err
	}
	rolesJSON, err := marshalOrEmptyList(p.Roles)
	if err != nil {
		return nil, err
	}
	var configJSON any
	if len(p.Configuration) > 0 {
		b, err := json.Marshal(p.Configuration)
		if err != nil {
			return nil, err
		}
		configJSON = string(b)
	}
	return []any{p.Target.Kind, p.Target.ID, p.CommunityID, p.ChangeType,
		actorsJSON, rolesJSON, boolInt(p.Anyone), boolInt(p.Inverse), boolInt(p.IsActive),
		configJSON, p.CreatedBy, p.CreatedAt}, nil
}

// InsertPermissionTx saves a permission, enforcing auto-activation first.
func (r Repo) InsertPermissionTx(ctx context.Context, tx *sql.Tx, p *perm.Permission) error {
	p.Normalize()
	args, err := permissionArgs(p)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO permissions(target_kind,target_id,community_id,change_type,actors_json,roles_json,anyone,inverse,is_active,configuration_json,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r Repo) UpdatePermissionTx(ctx context.Context, tx *sql.Tx, p *perm.Permission) error {
	p.Normalize()
	args, err := permissionArgs(p)
	if err != nil {
		return err
	}
	args = append(args, p.ID)
	res, err := tx.ExecContext(ctx, `UPDATE permissions SET target_kind=?,target_id=?,community_id=?,change_type=?,actors_json=?,roles_json=?,anyone=?,inverse=?,is_active=?,configuration_json=?,created_by=?,created_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePermissionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetPermission(ctx context.Context, id int64) (perm.Permission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+permissionCols+` FROM permissions WHERE id=?`, id)
	return scanPermission(row.Scan)
}

func (r Repo) GetPermissionTx(ctx context.Context, tx *sql.Tx, id int64) (perm.Permission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+permissionCols+` FROM permissions WHERE id=?`, id)
	return scanPermission(row.Scan)
}

// ListPermissionsOnTx returns every permission on a target in creation
// order.
func (r Repo) ListPermissionsOnTx(ctx context.Context, tx *sql.Tx, target domain.Ref) ([]perm.Permission, error) {
	return r.listPermissionsTx(ctx, tx, `SELECT `+permissionCols+` FROM permissions WHERE target_kind=? AND target_id=? ORDER BY id`, target.Kind, target.ID)
}

// ListSpecificPermissionsTx returns active permissions on a target matching
// a change type, in creation order.
func (r Repo) ListSpecificPermissionsTx(ctx context.Context, tx *sql.Tx, target domain.Ref, changeType string) ([]perm.Permission, error) {
	return r.listPermissionsTx(ctx, tx, `SELECT `+permissionCols+` FROM permissions WHERE target_kind=? AND target_id=? AND change_type=? AND is_active=1 ORDER BY id`, target.Kind, target.ID, changeType)
}

func (r Repo) listPermissionsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]perm.Permission, error) {
	return collectPermissions(tx.QueryContext(ctx, query, args...))
}

func (r Repo) ListPermissionsOn(ctx context.Context, target domain.Ref) ([]perm.Permission, error) {
	return collectPermissions(r.DB.QueryContext(ctx, `SELECT `+permissionCols+` FROM permissions WHERE target_kind=? AND target_id=? ORDER BY id`, target.Kind, target.ID))
}

func collectPermissions(rows *sql.Rows, err error) ([]perm.Permission, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []perm.Permission
	for rows.Next() {
		p, err := scanPermission(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
