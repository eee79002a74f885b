package repo

import (
	"context"
	"database/sql"
	"strings"

	"agora/internal/domain"
)

const templateCols = `id,source_id,set_on,community_id,permission_id,condition_type,condition_data,permission_data,created_at`

func scanTemplate(scan func(dest ...any) error) (domain.ConditionTemplate, error) {
	var t domain.ConditionTemplate
	var communityID, permissionID sql.NullInt64
	var permissionData sql.NullString
	err := scan(&t.ID, &t.SourceID, &t.SetOn, &communityID, &permissionID, &t.ConditionType, &t.ConditionData, &permissionData, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if communityID.Valid {
		t.CommunityID = &communityID.Int64
	}
	if permissionID.Valid {
		t.PermissionID = &permissionID.Int64
	}
	if permissionData.Valid {
		t.PermissionData = permissionData.String
	}
	return t, nil
}

// InsertTemplateTx saves a condition template. The source_id UNIQUE index
// enforces at most one template per source.
func (r Repo) InsertTemplateTx(ctx context.Context, tx *sql.Tx, t *domain.ConditionTemplate) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO condition_templates(source_id,set_on,community_id,permission_id,condition_type,condition_data,permission_data,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.SourceID, t.SetOn, nullableInt64Ptr(t.CommunityID), nullableInt64Ptr(t.PermissionID), t.ConditionType, t.ConditionData, nullable(t.PermissionData), t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validationf("a condition already exists on %s", t.SourceID)
		}
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetTemplateBySourceTx(ctx context.Context, tx *sql.Tx, sourceID string) (domain.ConditionTemplate, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+templateCols+` FROM condition_templates WHERE source_id=?`, sourceID)
	return scanTemplate(row.Scan)
}

func (r Repo) DeleteTemplateBySourceTx(ctx context.Context, tx *sql.Tx, sourceID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM condition_templates WHERE source_id=?`, sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const instanceCols = `id,action_id,source_id,community_id,condition_type,state_json,created_at`

func scanInstance(scan func(dest ...any) error) (domain.ConditionInstance, error) {
	var inst domain.ConditionInstance
	err := scan(&inst.ID, &inst.ActionID, &inst.SourceID, &inst.CommunityID, &inst.ConditionType, &inst.State, &inst.CreatedAt)
	if err == sql.ErrNoRows {
		return inst, ErrNotFound
	}
	return inst, err
}

// FindOrCreateInstanceTx is an atomic find-or-insert: concurrent callers
// for the same (action, source_id) observe one row. The second return
// reports whether this call created it.
func (r Repo) FindOrCreateInstanceTx(ctx context.Context, tx *sql.Tx, inst domain.ConditionInstance) (domain.ConditionInstance, bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO condition_instances(action_id,source_id,community_id,condition_type,state_json,created_at) VALUES (?,?,?,?,?,?)`,
		inst.ActionID, inst.SourceID, inst.CommunityID, inst.ConditionType, inst.State, inst.CreatedAt)
	if err != nil {
		return inst, false, err
	}
	created := false
	if n, _ := res.RowsAffected(); n > 0 {
		created = true
	}
	row := tx.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM condition_instances WHERE action_id=? AND source_id=?`, inst.ActionID, inst.SourceID)
	found, err := scanInstance(row.Scan)
	return found, created, err
}

func (r Repo) GetInstanceTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ConditionInstance, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM condition_instances WHERE id=?`, id)
	return scanInstance(row.Scan)
}

func (r Repo) GetInstanceByActionSourceTx(ctx context.Context, tx *sql.Tx, actionID int64, sourceID string) (domain.ConditionInstance, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM condition_instances WHERE action_id=? AND source_id=?`, actionID, sourceID)
	return scanInstance(row.Scan)
}

func (r Repo) ListInstancesForAction(ctx context.Context, actionID int64) ([]domain.ConditionInstance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+instanceCols+` FROM condition_instances WHERE action_id=? ORDER BY id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ConditionInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r Repo) UpdateInstanceStateTx(ctx context.Context, tx *sql.Tx, id int64, state string) error {
	res, err := tx.ExecContext(ctx, `UPDATE condition_instances SET state_json=? WHERE id=?`, state, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
