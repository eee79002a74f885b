package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"agora/internal/change"
	"agora/internal/community"
	"agora/internal/condition"
	"agora/internal/config"
	"agora/internal/domain"
	"agora/internal/events"
	"agora/internal/perm"
	"agora/internal/pipeline"
	"agora/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) deps(tx *sql.Tx) pipeline.Deps {
	logCap := domain.DefaultLogCap
	if e.Config != nil && e.Config.Resolution.LogCap > 0 {
		logCap = e.Config.Resolution.LogCap
	}
	return pipeline.Deps{Repo: e.Repo, Tx: tx, Now: e.now, LogCap: logCap}
}

// CreateCommunity bootstraps a community outside the permission system:
// the creator becomes its first member, owner and governor, and the
// governing pipeline starts enabled so the creator can act at all.
func (e Engine) CreateCommunity(ctx context.Context, name string, creator int64) (community.Community, error) {
	if name == "" {
		return community.Community{}, errors.New("community name is required")
	}
	if creator <= 0 {
		return community.Community{}, errors.New("creator is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return community.Community{}, err
	}
	defer tx.Rollback()

	roles := community.NewRegistry()
	if err := roles.AddMember(creator); err != nil {
		return community.Community{}, err
	}
	if err := roles.AddOwner(creator); err != nil {
		return community.Community{}, err
	}
	if err := roles.AddGovernor(creator); err != nil {
		return community.Community{}, err
	}
	comm := community.Community{
		Name:      name,
		Roles:     roles,
		Governing: true,
		CreatedBy: creator,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertCommunityTx(ctx, tx, &comm); err != nil {
		return community.Community{}, fmt.Errorf("insert community: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "community.create", comm.ID, "community", strconv.FormatInt(comm.ID, 10), creator, events.EventPayload{"name": name}); err != nil {
		return community.Community{}, err
	}
	if err := tx.Commit(); err != nil {
		return community.Community{}, err
	}
	return comm, nil
}

// Take runs one action through the full lifecycle: record it, resolve the
// permission pipelines and, when approved, implement the change. The whole
// run commits or rolls back as a unit.
func (e Engine) Take(ctx context.Context, actor int64, target domain.Ref, ch change.Change) (domain.Action, error) {
	if actor <= 0 {
		return domain.Action{}, errors.New("actor is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()

	act, err := e.draftActionTx(ctx, tx, actor, target, ch, nil, 0)
	if err != nil {
		return domain.Action{}, err
	}
	if err := e.processTx(ctx, tx, &act, false); err != nil {
		return domain.Action{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Action{}, err
	}
	return act, nil
}

// RetryAction re-resolves a previously taken action, implementing it if the
// pipelines now approve.
func (e Engine) RetryAction(ctx context.Context, actionID int64) (domain.Action, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()

	act, err := e.Repo.GetActionTx(ctx, tx, actionID)
	if err != nil {
		return domain.Action{}, err
	}
	if act.Status == domain.StatusImplemented {
		return domain.Action{}, fmt.Errorf("action %d is already implemented", actionID)
	}
	if err := e.processTx(ctx, tx, &act, false); err != nil {
		return domain.Action{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Action{}, err
	}
	return act, nil
}

func (e Engine) draftActionTx(ctx context.Context, tx *sql.Tx, actor int64, target domain.Ref, ch change.Change, containerID *int64, order int) (domain.Action, error) {
	if _, err := e.Repo.ResolveTargetTx(ctx, tx, target); err != nil {
		return domain.Action{}, err
	}
	data, err := change.Encode(ch)
	if err != nil {
		return domain.Action{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	act := domain.Action{
		Actor:          actor,
		Target:         target,
		ChangeType:     ch.Type(),
		ChangeData:     data,
		ContainerID:    containerID,
		ContainerOrder: order,
		Resolution:     domain.NewResolution(),
		Status:         domain.StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertActionTx(ctx, tx, &act); err != nil {
		return domain.Action{}, fmt.Errorf("insert action: %w", err)
	}
	return act, nil
}

// processTx resolves the action and, when provisional is false and the
// pipelines approve, implements it.
func (e Engine) processTx(ctx context.Context, tx *sql.Tx, act *domain.Action, provisional bool) error {
	if err := e.resolveActionTx(ctx, tx, act); err != nil {
		return err
	}
	if act.Status == domain.StatusApproved && !provisional {
		return e.implementActionTx(ctx, tx, act)
	}
	return nil
}

// resolveActionTx validates the action and runs the permission pipelines,
// materializing any newly consulted conditions and re-running once so they
// count. It never implements.
func (e Engine) resolveActionTx(ctx context.Context, tx *sql.Tx, act *domain.Action) error {
	target, err := e.Repo.ResolveTargetTx(ctx, tx, act.Target)
	if err != nil {
		return err
	}
	ch, err := change.Decode(act.ChangeType, act.ChangeData)
	if err != nil {
		return err
	}
	act.Status = domain.StatusSent

	if err := ch.Validate(ctx, tx, e.Repo, act.Actor, target); err != nil {
		if !domain.IsValidation(err) {
			return err
		}
		act.Status = domain.StatusRejected
		act.Resolution.Reset()
		act.Resolution.AddLog("validation", err.Error(), e.now())
		return e.saveActionTx(ctx, tx, act, target.OwnerCommunityID())
	}

	d := e.deps(tx)
	if err := pipeline.Run(ctx, d, act, ch, target); err != nil {
		return err
	}
	if uncreated := act.Resolution.UncreatedConditions(); len(uncreated) > 0 {
		for _, src := range uncreated {
			if err := e.materializeConditionTx(ctx, tx, act, src, target.OwnerCommunityID()); err != nil {
				return err
			}
		}
		if err := pipeline.Run(ctx, d, act, ch, target); err != nil {
			return err
		}
	}

	switch act.Resolution.OverallStatus() {
	case domain.StatusApproved:
		act.Status = domain.StatusApproved
	case domain.StatusWaiting:
		act.Status = domain.StatusWaiting
	default:
		act.Status = domain.StatusRejected
	}
	return e.saveActionTx(ctx, tx, act, target.OwnerCommunityID())
}

// implementActionTx applies an approved action's change. When the change
// targeted a condition instance, the action that condition gates is retried
// in the same transaction.
func (e Engine) implementActionTx(ctx context.Context, tx *sql.Tx, act *domain.Action) error {
	target, err := e.Repo.ResolveTargetTx(ctx, tx, act.Target)
	if err != nil {
		return err
	}
	ch, err := change.Decode(act.ChangeType, act.ChangeData)
	if err != nil {
		return err
	}
	if _, err := ch.Implement(ctx, tx, e.Repo, act.Actor, target, e.now()); err != nil {
		return err
	}
	act.Status = domain.StatusImplemented
	if err := e.saveActionTx(ctx, tx, act, target.OwnerCommunityID()); err != nil {
		return err
	}
	if act.Target.Kind == domain.KindCondition {
		return e.retryGatedActionTx(ctx, tx, act.Target.ID)
	}
	return nil
}

func (e Engine) saveActionTx(ctx context.Context, tx *sql.Tx, act *domain.Action, communityID int64) error {
	act.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateActionTx(ctx, tx, act); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "action."+act.Status, communityID, "action", strconv.FormatInt(act.ID, 10), act.Actor, events.EventPayload{
		"change_type": act.ChangeType,
		"target":      act.Target,
	})
}

// materializeConditionTx creates the condition instance for a consulted
// source, seeding deadlines from config, and sets up the permissions the
// template grants on the new instance.
func (e Engine) materializeConditionTx(ctx context.Context, tx *sql.Tx, act *domain.Action, sourceID string, communityID int64) error {
	t, err := e.Repo.GetTemplateBySourceTx(ctx, tx, sourceID)
	if errors.Is(err, repo.ErrNotFound) {
		// Template removed since the run; the re-run approves outright.
		return nil
	}
	if err != nil {
		return err
	}
	state, err := e.seedState(t)
	if err != nil {
		return err
	}
	inst, created, err := e.Repo.FindOrCreateInstanceTx(ctx, tx, domain.ConditionInstance{
		ActionID:      act.ID,
		SourceID:      sourceID,
		CommunityID:   communityID,
		ConditionType: t.ConditionType,
		State:         state,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if t.PermissionData != "" {
		var grants []domain.PermissionGrant
		if err := json.Unmarshal([]byte(t.PermissionData), &grants); err != nil {
			return fmt.Errorf("decode permission data for %s: %w", sourceID, err)
		}
		for _, g := range grants {
			p := perm.Permission{
				Target:      inst.TargetRef(),
				CommunityID: communityID,
				ChangeType:  g.ChangeType,
				Actors:      g.Actors,
				Roles:       g.Roles,
				Anyone:      g.Anyone,
				CreatedBy:   act.Actor,
				CreatedAt:   e.now().UTC().Format(time.RFC3339),
			}
			if err := e.Repo.InsertPermissionTx(ctx, tx, &p); err != nil {
				return err
			}
		}
	}
	return e.Events.Append(ctx, tx, "condition.create", communityID, "condition", strconv.FormatInt(inst.ID, 10), act.Actor, events.EventPayload{
		"source":         sourceID,
		"condition_type": t.ConditionType,
		"action_id":      act.ID,
	})
}

// seedState fills in the runtime defaults a template leaves open, such as
// the clock a vote or consensus starts from.
func (e Engine) seedState(t domain.ConditionTemplate) (string, error) {
	cond, err := condition.Decode(t.ConditionType, t.ConditionData)
	if err != nil {
		return "", err
	}
	started := e.now().UTC().Format(time.RFC3339)
	switch c := cond.(type) {
	case *condition.Vote:
		if c.StartedAt == "" {
			c.StartedAt = started
		}
		if c.PeriodHours == 0 && e.Config != nil {
			c.PeriodHours = e.Config.Conditions.VotePeriodHours
		}
	case *condition.Consensus:
		if c.StartedAt == "" {
			c.StartedAt = started
		}
		if c.MinimumDurationHours == 0 && e.Config != nil {
			c.MinimumDurationHours = e.Config.Conditions.ConsensusMinimumHours
		}
	}
	return condition.Encode(cond)
}

// retryGatedActionTx re-resolves the action gated by the condition instance
// that was just acted on. If the gated action belongs to a container, the
// whole container is re-run so its members stay in lockstep.
func (e Engine) retryGatedActionTx(ctx context.Context, tx *sql.Tx, instanceID int64) error {
	inst, err := e.Repo.GetInstanceTx(ctx, tx, instanceID)
	if err != nil {
		return err
	}
	src, err := e.Repo.GetActionTx(ctx, tx, inst.ActionID)
	if err != nil {
		return err
	}
	if src.Status != domain.StatusWaiting {
		return nil
	}
	if src.ContainerID != nil {
		cont, err := e.Repo.GetContainerTx(ctx, tx, *src.ContainerID)
		if err != nil {
			return err
		}
		return e.runContainerTx(ctx, tx, &cont, false)
	}
	return e.processTx(ctx, tx, &src, false)
}
