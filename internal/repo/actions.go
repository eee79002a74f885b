package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"agora/internal/domain"
)

const actionCols = `id,actor_id,target_kind,target_id,change_type,change_data,container_id,container_order,resolution_json,status,created_at,updated_at`

func scanAction(scan func(dest ...any) error) (domain.Action, error) {
	var a domain.Action
	var containerID sql.NullInt64
	var resolutionJSON string
	err := scan(&a.ID, &a.Actor, &a.Target.Kind, &a.Target.ID, &a.ChangeType, &a.ChangeData,
		&containerID, &a.ContainerOrder, &resolutionJSON, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if containerID.Valid {
		a.ContainerID = &containerID.Int64
	}
	if err := json.Unmarshal([]byte(resolutionJSON), &a.Resolution); err != nil {
		return a, fmt.Errorf("decode action %d resolution: %w", a.ID, err)
	}
	return a, nil
}

func (r Repo) InsertActionTx(ctx context.Context, tx *sql.Tx, a *domain.Action) error {
	resolutionJSON, err := json.Marshal(a.Resolution)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO actions(actor_id,target_kind,target_id,change_type,change_data,container_id,container_order,resolution_json,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.Actor, a.Target.Kind, a.Target.ID, a.ChangeType, a.ChangeData,
		nullableInt64Ptr(a.ContainerID), a.ContainerOrder, string(resolutionJSON), a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r Repo) UpdateActionTx(ctx context.Context, tx *sql.Tx, a *domain.Action) error {
	resolutionJSON, err := json.Marshal(a.Resolution)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE actions SET resolution_json=?, status=?, updated_at=? WHERE id=?`,
		string(resolutionJSON), a.Status, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAction(ctx context.Context, id int64) (domain.Action, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actionCols+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Action, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+actionCols+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

type ActionFilters struct {
	Target     domain.Ref
	Status     string
	Actor      int64
	ChangeType string
	Limit      int
}

func (r Repo) ListActions(ctx context.Context, f ActionFilters) ([]domain.Action, error) {
	var clauses []string
	var args []any
	if !f.Target.IsZero() {
		clauses = append(clauses, "target_kind=?", "target_id=?")
		args = append(args, f.Target.Kind, f.Target.ID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Actor != 0 {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.Actor)
	}
	if f.ChangeType != "" {
		clauses = append(clauses, "change_type=?")
		args = append(args, f.ChangeType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + actionCols + ` FROM actions ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Action
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListContainerActionsTx returns a container's member actions in their
// declared order.
func (r Repo) ListContainerActionsTx(ctx context.Context, tx *sql.Tx, containerID int64) ([]domain.Action, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+actionCols+` FROM actions WHERE container_id=? ORDER BY container_order, id`, containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Action
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const containerCols = `id,container_key,status,summary_json,created_by,created_at`

func scanContainer(scan func(dest ...any) error) (domain.Container, error) {
	var c domain.Container
	var summary sql.NullString
	err := scan(&c.ID, &c.Key, &c.Status, &summary, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if summary.Valid {
		c.Summary = summary.String
	}
	return c, err
}

func (r Repo) InsertContainerTx(ctx context.Context, tx *sql.Tx, c *domain.Container) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO containers(container_key,status,summary_json,created_by,created_at) VALUES (?,?,?,?,?)`,
		c.Key, c.Status, nullable(c.Summary), c.CreatedBy, c.CreatedAt)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (r Repo) UpdateContainerTx(ctx context.Context, tx *sql.Tx, c *domain.Container) error {
	res, err := tx.ExecContext(ctx, `UPDATE containers SET status=?, summary_json=? WHERE id=?`, c.Status, nullable(c.Summary), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetContainerByKey(ctx context.Context, key string) (domain.Container, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+containerCols+` FROM containers WHERE container_key=?`, key)
	return scanContainer(row.Scan)
}

func (r Repo) GetContainerByKeyTx(ctx context.Context, tx *sql.Tx, key string) (domain.Container, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+containerCols+` FROM containers WHERE container_key=?`, key)
	return scanContainer(row.Scan)
}

func (r Repo) GetContainerTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Container, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+containerCols+` FROM containers WHERE id=?`, id)
	return scanContainer(row.Scan)
}
