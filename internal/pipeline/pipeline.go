// Package pipeline resolves whether an action passes the permission
// waterfall: foundational first, then specific permissions, then the
// governing fallback.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agora/internal/change"
	"agora/internal/community"
	"agora/internal/condition"
	"agora/internal/domain"
	"agora/internal/perm"
	"agora/internal/repo"
)

// Deps carries everything a single resolution run needs. All reads go
// through the supplied transaction.
type Deps struct {
	Repo   repo.Repo
	Tx     *sql.Tx
	Now    func() time.Time
	LogCap int
}

// Run resolves the action's pipelines against the target and records the
// outcome in act.Resolution. It never creates condition instances; sources
// that would need one are marked uncreated for the caller to materialize.
func Run(ctx context.Context, d Deps, act *domain.Action, ch change.Change, target domain.Target) error {
	act.Resolution.Reset()

	owner, err := d.Repo.GetCommunityTx(ctx, d.Tx, target.OwnerCommunityID())
	if err != nil {
		return err
	}

	// Foundational changes and foundationally-governed targets resolve
	// through the foundational pipeline alone. Whatever its outcome, no
	// other pipeline is consulted.
	if ch.Foundational() || target.FoundationalEnabled() {
		return runFoundational(ctx, d, act, target, &owner)
	}

	matched, err := runSpecific(ctx, d, act, ch, target, &owner)
	if err != nil {
		return err
	}
	if matched {
		act.Resolution.TrimLog(d.LogCap)
		return nil
	}

	if target.GoverningEnabled() {
		if err := runGoverning(ctx, d, act, target, &owner); err != nil {
			return err
		}
	} else {
		act.Resolution.SetStatus(domain.PipeSpecific, domain.SubRejected)
		act.Resolution.AddLog(domain.PipeSpecific, "action did not meet any permission criteria", d.Now())
	}
	act.Resolution.TrimLog(d.LogCap)
	return nil
}

func runFoundational(ctx context.Context, d Deps, act *domain.Action, target domain.Target, owner *community.Community) error {
	ok, rolePtr := owner.Roles.IsOwner(act.Actor)
	if !ok {
		act.Resolution.SetStatus(domain.PipeFoundational, domain.SubRejected)
		act.Resolution.AddLog(domain.PipeFoundational, "actor is not an owner of community "+owner.Name, d.Now())
		act.Resolution.TrimLog(d.LogCap)
		return nil
	}
	role := ""
	if rolePtr != nil {
		role = *rolePtr
	}
	err := resolveThrough(ctx, d, act, target, owner, domain.PipeFoundational, role, domain.SourceForOwner(owner.ID))
	act.Resolution.TrimLog(d.LogCap)
	return err
}

func runSpecific(ctx context.Context, d Deps, act *domain.Action, ch change.Change, target domain.Target, owner *community.Community) (bool, error) {
	perms, err := d.Repo.ListSpecificPermissionsTx(ctx, d.Tx, act.Target, act.ChangeType)
	if err != nil {
		return false, err
	}
	if target.TargetRef() != owner.TargetRef() {
		more, err := d.Repo.ListSpecificPermissionsTx(ctx, d.Tx, owner.TargetRef(), act.ChangeType)
		if err != nil {
			return false, err
		}
		perms = append(perms, more...)
	}

	comms := map[int64]*community.Community{owner.ID: owner}
	for i := range perms {
		p := &perms[i]
		if checker, ok := ch.(change.ConfigurationChecker); ok {
			passed, why := checker.CheckConfiguration(act.Actor, p)
			if !passed {
				act.Resolution.AddLog(domain.PipeSpecific, why, d.Now())
				continue
			}
		}
		comm := comms[p.CommunityID]
		if comm == nil {
			c, err := d.Repo.GetCommunityTx(ctx, d.Tx, p.CommunityID)
			if err != nil {
				return false, err
			}
			comm = &c
			comms[p.CommunityID] = comm
		}
		ok, role := perm.Satisfies(&comm.Roles, act.Actor, p)
		if !ok {
			continue
		}
		err := resolveThrough(ctx, d, act, target, owner, domain.PipeSpecific, role, domain.SourceForPermission(p.ID))
		return true, err
	}
	return false, nil
}

func runGoverning(ctx context.Context, d Deps, act *domain.Action, target domain.Target, owner *community.Community) error {
	ok, rolePtr := owner.Roles.IsGovernor(act.Actor)
	if !ok {
		act.Resolution.SetStatus(domain.PipeGoverning, domain.SubRejected)
		act.Resolution.AddLog(domain.PipeGoverning, "actor is not a governor of community "+owner.Name, d.Now())
		return nil
	}
	role := ""
	if rolePtr != nil {
		role = *rolePtr
	}
	return resolveThrough(ctx, d, act, target, owner, domain.PipeGoverning, role, domain.SourceForGovernor(owner.ID))
}

// resolveThrough finishes a pipeline whose permission criterion already
// matched: approve outright unless the source carries a condition template,
// in which case the condition instance's state decides.
func resolveThrough(ctx context.Context, d Deps, act *domain.Action, target domain.Target, owner *community.Community, pipeline, role, sourceID string) error {
	_, err := d.Repo.GetTemplateBySourceTx(ctx, d.Tx, sourceID)
	if errors.Is(err, repo.ErrNotFound) {
		act.Resolution.Approve(pipeline, role, "")
		act.Resolution.AddLog(pipeline, "approved", d.Now())
		return nil
	}
	if err != nil {
		return err
	}

	inst, err := d.Repo.GetInstanceByActionSourceTx(ctx, d.Tx, act.ID, sourceID)
	if errors.Is(err, repo.ErrNotFound) {
		act.Resolution.MarkCondition(sourceID, false)
		act.Resolution.SetStatus(pipeline, domain.SubWaiting)
		act.Resolution.AddLog(pipeline, "waiting on condition "+sourceID, d.Now())
		return nil
	}
	if err != nil {
		return err
	}
	act.Resolution.MarkCondition(sourceID, true)

	cond, err := condition.Decode(inst.ConditionType, inst.State)
	if err != nil {
		return err
	}
	env := condition.Env{Now: d.Now(), Action: act, Target: target, Roles: &owner.Roles}
	switch status := cond.Status(env); status {
	case domain.SubApproved:
		act.Resolution.Approve(pipeline, role, sourceID)
		act.Resolution.AddLog(pipeline, "condition "+sourceID+" passed", d.Now())
	case domain.SubRejected:
		act.Resolution.SetStatus(pipeline, domain.SubRejected)
		act.Resolution.AddLog(pipeline, "condition "+sourceID+" failed", d.Now())
	default:
		act.Resolution.SetStatus(pipeline, domain.SubWaiting)
		act.Resolution.AddLog(pipeline, "waiting on condition "+sourceID+": "+cond.DescriptionForPassing(), d.Now())
	}
	return nil
}
