package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agora/internal/change"
	"agora/internal/domain"
	"agora/internal/events"
)

// ContainerItem is one proposed action inside a container.
type ContainerItem struct {
	Target domain.Ref
	Change change.Change
}

// CreateContainer records a group of draft actions that will resolve and
// commit together. Nothing is processed yet.
func (e Engine) CreateContainer(ctx context.Context, actor int64, items []ContainerItem) (domain.Container, error) {
	if actor <= 0 {
		return domain.Container{}, errors.New("actor is required")
	}
	if len(items) == 0 {
		return domain.Container{}, errors.New("container needs at least one action")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Container{}, err
	}
	defer tx.Rollback()

	cont := domain.Container{
		Key:       uuid.NewString(),
		Status:    domain.ContainerDraft,
		CreatedBy: actor,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertContainerTx(ctx, tx, &cont); err != nil {
		return domain.Container{}, fmt.Errorf("insert container: %w", err)
	}
	for i, item := range items {
		if _, err := e.draftActionTx(ctx, tx, actor, item.Target, item.Change, &cont.ID, i); err != nil {
			return domain.Container{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "container.create", 0, "container", cont.Key, actor, events.EventPayload{"actions": len(items)}); err != nil {
		return domain.Container{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Container{}, err
	}
	return cont, nil
}

// ProcessProvisionally resolves every member action without implementing
// anything, so callers can preview whether the group would pass.
func (e Engine) ProcessProvisionally(ctx context.Context, key string) (domain.Container, error) {
	return e.processContainer(ctx, key, true)
}

// ProcessPermanently resolves every member action and, only when all of
// them approve, implements them in order. The group lands whole or not at
// all.
func (e Engine) ProcessPermanently(ctx context.Context, key string) (domain.Container, error) {
	return e.processContainer(ctx, key, false)
}

func (e Engine) processContainer(ctx context.Context, key string, provisional bool) (domain.Container, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Container{}, err
	}
	defer tx.Rollback()

	cont, err := e.Repo.GetContainerByKeyTx(ctx, tx, key)
	if err != nil {
		return domain.Container{}, err
	}
	if cont.Status == domain.StatusImplemented {
		return domain.Container{}, fmt.Errorf("container %s is already implemented", key)
	}
	if err := e.runContainerTx(ctx, tx, &cont, provisional); err != nil {
		return domain.Container{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Container{}, err
	}
	return cont, nil
}

// runContainerTx resolves all member actions, then implements them only if
// every one approved and the run is permanent. Already-implemented members
// are left alone.
func (e Engine) runContainerTx(ctx context.Context, tx *sql.Tx, cont *domain.Container, provisional bool) error {
	acts, err := e.Repo.ListContainerActionsTx(ctx, tx, cont.ID)
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		return fmt.Errorf("container %s has no actions", cont.Key)
	}

	for i := range acts {
		if acts[i].Status == domain.StatusImplemented {
			continue
		}
		if err := e.resolveActionTx(ctx, tx, &acts[i]); err != nil {
			return err
		}
	}

	status := aggregateStatus(acts)
	if !provisional && status == domain.StatusApproved {
		for i := range acts {
			if acts[i].Status == domain.StatusImplemented {
				continue
			}
			if err := e.implementActionTx(ctx, tx, &acts[i]); err != nil {
				return err
			}
		}
		status = domain.StatusImplemented
	}

	entries := make([]domain.ContainerSummaryEntry, 0, len(acts))
	for _, a := range acts {
		entries = append(entries, domain.ContainerSummaryEntry{
			ActionID: a.ID,
			Status:   a.Status,
			Log:      a.Resolution.LastLog(),
		})
	}
	summary, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	cont.Status = status
	cont.Summary = string(summary)
	if err := e.Repo.UpdateContainerTx(ctx, tx, cont); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "container."+status, 0, "container", cont.Key, cont.CreatedBy, events.EventPayload{
		"provisional": provisional,
		"actions":     len(acts),
	})
}

// aggregateStatus folds member outcomes into one container outcome. Any
// rejection sinks the group, any wait holds it, and a fully implemented
// group reports implemented.
func aggregateStatus(acts []domain.Action) string {
	rejected, waiting, implemented, approved := 0, 0, 0, 0
	for _, a := range acts {
		switch a.Status {
		case domain.StatusRejected:
			rejected++
		case domain.StatusWaiting:
			waiting++
		case domain.StatusImplemented:
			implemented++
		case domain.StatusApproved:
			approved++
		}
	}
	switch {
	case rejected > 0:
		return domain.StatusRejected
	case waiting > 0:
		return domain.StatusWaiting
	case implemented == len(acts):
		return domain.StatusImplemented
	case approved+implemented == len(acts):
		return domain.StatusApproved
	}
	panic(fmt.Sprintf("unaccountable container statuses: %d rejected, %d waiting, %d implemented, %d approved of %d",
		rejected, waiting, implemented, approved, len(acts)))
}
