package change

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"agora/internal/condition"
	"agora/internal/domain"
	"agora/internal/repo"
)

// Condition change type ids.
const (
	TypeAddConditionTemplate    = "condition.add_template"
	TypeRemoveConditionTemplate = "condition.remove_template"
	TypeApproveCondition        = "condition.approve"
	TypeRejectCondition         = "condition.reject"
	TypeCastVote                = "condition.cast_vote"
	TypeRespondConsensus        = "condition.respond_consensus"
	TypeResolveConsensus        = "condition.resolve_consensus"
)

// AddConditionTemplate sets a condition on a permission or on a community's
// owner or governor authority. Each source holds at most one template.
type AddConditionTemplate struct {
	SetOn          string `json:"set_on"`
	ConditionType  string `json:"condition_type"`
	ConditionData  string `json:"condition_data,omitempty"`
	PermissionData string `json:"permission_data,omitempty"`
}

func (c *AddConditionTemplate) Type() string { return TypeAddConditionTemplate }

// Conditions on owner or governor authority gate the community's highest
// powers, so setting them is itself foundational.
func (c *AddConditionTemplate) Foundational() bool {
	return c.SetOn == domain.SetOnOwner || c.SetOn == domain.SetOnGovernor
}

func (c *AddConditionTemplate) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	if !condition.Known(c.ConditionType) {
		return domain.Validationf("unknown condition type %s", c.ConditionType)
	}
	if _, err := condition.Decode(c.ConditionType, c.ConditionData); err != nil {
		return err
	}
	sourceID, err := templateSource(c.SetOn, target)
	if err != nil {
		return err
	}
	if _, err := r.GetTemplateBySourceTx(ctx, tx, sourceID); err == nil {
		return domain.Validationf("a condition is already set on %s", sourceID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if c.PermissionData != "" {
		var grants []domain.PermissionGrant
		if err := decodeGrants(c.PermissionData, &grants); err != nil {
			return err
		}
		for _, g := range grants {
			if !Known(g.ChangeType) {
				return domain.Validationf("unknown change type %s in permission data", g.ChangeType)
			}
		}
	}
	return nil
}

func (c *AddConditionTemplate) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	t := &domain.ConditionTemplate{
		SetOn:          c.SetOn,
		ConditionType:  c.ConditionType,
		ConditionData:  c.ConditionData,
		PermissionData: c.PermissionData,
		CreatedAt:      now.UTC().Format(time.RFC3339),
	}
	switch c.SetOn {
	case domain.SetOnPermission:
		p, err := permissionTarget(target)
		if err != nil {
			return nil, err
		}
		t.SourceID = domain.SourceForPermission(p.ID)
		t.PermissionID = &p.ID
	case domain.SetOnOwner:
		comm, err := communityTarget(target)
		if err != nil {
			return nil, err
		}
		t.SourceID = domain.SourceForOwner(comm.ID)
		t.CommunityID = &comm.ID
	case domain.SetOnGovernor:
		comm, err := communityTarget(target)
		if err != nil {
			return nil, err
		}
		t.SourceID = domain.SourceForGovernor(comm.ID)
		t.CommunityID = &comm.ID
	}
	if err := r.InsertTemplateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

type RemoveConditionTemplate struct {
	SetOn string `json:"set_on"`
}

func (c *RemoveConditionTemplate) Type() string { return TypeRemoveConditionTemplate }

func (c *RemoveConditionTemplate) Foundational() bool {
	return c.SetOn == domain.SetOnOwner || c.SetOn == domain.SetOnGovernor
}

func (c *RemoveConditionTemplate) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	sourceID, err := templateSource(c.SetOn, target)
	if err != nil {
		return err
	}
	if _, err := r.GetTemplateBySourceTx(ctx, tx, sourceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Validationf("no condition is set on %s", sourceID)
		}
		return err
	}
	return nil
}

func (c *RemoveConditionTemplate) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	sourceID, err := templateSource(c.SetOn, target)
	if err != nil {
		return nil, err
	}
	if err := r.DeleteTemplateBySourceTx(ctx, tx, sourceID); err != nil {
		return nil, err
	}
	return sourceID, nil
}

// templateSource maps a set_on value and its target to the condition
// source id the template is keyed by.
func templateSource(setOn string, target domain.Target) (string, error) {
	switch setOn {
	case domain.SetOnPermission:
		p, err := permissionTarget(target)
		if err != nil {
			return "", err
		}
		return domain.SourceForPermission(p.ID), nil
	case domain.SetOnOwner:
		comm, err := communityTarget(target)
		if err != nil {
			return "", err
		}
		return domain.SourceForOwner(comm.ID), nil
	case domain.SetOnGovernor:
		comm, err := communityTarget(target)
		if err != nil {
			return "", err
		}
		return domain.SourceForGovernor(comm.ID), nil
	}
	return "", domain.Validationf("set_on must be permission, owner or governor")
}

func decodeGrants(data string, grants *[]domain.PermissionGrant) error {
	if err := json.Unmarshal([]byte(data), grants); err != nil {
		return domain.Validationf("invalid permission data: %v", err)
	}
	return nil
}

// instanceCondition loads the condition held by the targeted instance
// together with the actor of the action it gates.
func instanceCondition(ctx context.Context, tx *sql.Tx, r repo.Repo, target domain.Target) (*domain.ConditionInstance, condition.Condition, *domain.Action, error) {
	inst, err := conditionTarget(target)
	if err != nil {
		return nil, nil, nil, err
	}
	cond, err := condition.Decode(inst.ConditionType, inst.State)
	if err != nil {
		return nil, nil, nil, err
	}
	act, err := r.GetActionTx(ctx, tx, inst.ActionID)
	if err != nil {
		return nil, nil, nil, err
	}
	return inst, cond, &act, nil
}

func saveInstance(ctx context.Context, tx *sql.Tx, r repo.Repo, inst *domain.ConditionInstance, cond condition.Condition) error {
	state, err := condition.Encode(cond)
	if err != nil {
		return err
	}
	inst.State = state
	return r.UpdateInstanceStateTx(ctx, tx, inst.ID, state)
}

type ApproveCondition struct{}

func (c *ApproveCondition) Type() string       { return TypeApproveCondition }
func (c *ApproveCondition) Foundational() bool { return false }

func (c *ApproveCondition) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return err
	}
	if _, ok := cond.(*condition.Approval); !ok {
		return domain.Validationf("condition %d is not an approval", inst.ID)
	}
	return nil
}

func (c *ApproveCondition) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	inst, cond, act, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return nil, err
	}
	approval, ok := cond.(*condition.Approval)
	if !ok {
		return nil, domain.Validationf("condition %d is not an approval", inst.ID)
	}
	if err := approval.Approve(actor, act.Actor); err != nil {
		return nil, err
	}
	if err := saveInstance(ctx, tx, r, inst, approval); err != nil {
		return nil, err
	}
	return inst, nil
}

type RejectCondition struct{}

func (c *RejectCondition) Type() string       { return TypeRejectCondition }
func (c *RejectCondition) Foundational() bool { return false }

func (c *RejectCondition) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return err
	}
	if _, ok := cond.(*condition.Approval); !ok {
		return domain.Validationf("condition %d is not an approval", inst.ID)
	}
	return nil
}

func (c *RejectCondition) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	inst, cond, act, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return nil, err
	}
	approval, ok := cond.(*condition.Approval)
	if !ok {
		return nil, domain.Validationf("condition %d is not an approval", inst.ID)
	}
	if err := approval.Reject(actor, act.Actor); err != nil {
		return nil, err
	}
	if err := saveInstance(ctx, tx, r, inst, approval); err != nil {
		return nil, err
	}
	return inst, nil
}

type CastVote struct {
	Vote string `json:"vote"`
}

func (c *CastVote) Type() string       { return TypeCastVote }
func (c *CastVote) Foundational() bool { return false }

func (c *CastVote) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	switch c.Vote {
	case condition.VoteYea, condition.VoteNay, condition.VoteAbstain:
	default:
		return domain.Validationf("vote must be yea, nay or abstain")
	}
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return err
	}
	if _, ok := cond.(*condition.Vote); !ok {
		return domain.Validationf("condition %d is not a vote", inst.ID)
	}
	return nil
}

func (c *CastVote) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return nil, err
	}
	vote, ok := cond.(*condition.Vote)
	if !ok {
		return nil, domain.Validationf("condition %d is not a vote", inst.ID)
	}
	if err := vote.AddVote(actor, c.Vote, now); err != nil {
		return nil, err
	}
	if err := saveInstance(ctx, tx, r, inst, vote); err != nil {
		return nil, err
	}
	return inst, nil
}

type RespondConsensus struct {
	Response string `json:"response"`
}

func (c *RespondConsensus) Type() string       { return TypeRespondConsensus }
func (c *RespondConsensus) Foundational() bool { return false }

func (c *RespondConsensus) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return err
	}
	if _, ok := cond.(*condition.Consensus); !ok {
		return domain.Validationf("condition %d is not a consensus", inst.ID)
	}
	return nil
}

func (c *RespondConsensus) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return nil, err
	}
	consensus, ok := cond.(*condition.Consensus)
	if !ok {
		return nil, domain.Validationf("condition %d is not a consensus", inst.ID)
	}
	if err := consensus.Respond(actor, c.Response); err != nil {
		return nil, err
	}
	if err := saveInstance(ctx, tx, r, inst, consensus); err != nil {
		return nil, err
	}
	return inst, nil
}

type ResolveConsensus struct{}

func (c *ResolveConsensus) Type() string       { return TypeResolveConsensus }
func (c *ResolveConsensus) Foundational() bool { return false }

func (c *ResolveConsensus) Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return err
	}
	if _, ok := cond.(*condition.Consensus); !ok {
		return domain.Validationf("condition %d is not a consensus", inst.ID)
	}
	return nil
}

func (c *ResolveConsensus) Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error) {
	inst, cond, _, err := instanceCondition(ctx, tx, r, target)
	if err != nil {
		return nil, err
	}
	consensus, ok := cond.(*condition.Consensus)
	if !ok {
		return nil, domain.Validationf("condition %d is not a consensus", inst.ID)
	}
	if err := consensus.Resolve(now); err != nil {
		return nil, err
	}
	if err := saveInstance(ctx, tx, r, inst, consensus); err != nil {
		return nil, err
	}
	return inst, nil
}
