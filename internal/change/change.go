package change

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"agora/internal/community"
	"agora/internal/domain"
	"agora/internal/perm"
	"agora/internal/repo"
)

// Change is one mutation type. Type returns the stable persistence id,
// Foundational marks changes that always resolve through the foundational
// pipeline, Validate runs before the pipeline and Implement applies the
// mutation after approval.
type Change interface {
	Type() string
	Foundational() bool
	Validate(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target) error
	Implement(ctx context.Context, tx *sql.Tx, r repo.Repo, actor int64, target domain.Target, now time.Time) (any, error)
}

// ConfigurationChecker is implemented by changes whose matching permission
// may carry a type-specific configuration gate.
type ConfigurationChecker interface {
	CheckConfiguration(actor int64, p *perm.Permission) (bool, string)
}

type factory func() Change

// The registry is a closed set: every change variant is listed here and
// keyed by its stable string id.
var registry = map[string]factory{
	TypeChangeName:           func() Change { return &ChangeName{} },
	TypeAddMembers:           func() Change { return &AddMembers{} },
	TypeRemoveMembers:        func() Change { return &RemoveMembers{} },
	TypeAddGovernor:          func() Change { return &AddGovernor{} },
	TypeRemoveGovernor:       func() Change { return &RemoveGovernor{} },
	TypeAddGovernorRole:      func() Change { return &AddGovernorRole{} },
	TypeRemoveGovernorRole:   func() Change { return &RemoveGovernorRole{} },
	TypeAddOwner:             func() Change { return &AddOwner{} },
	TypeRemoveOwner:          func() Change { return &RemoveOwner{} },
	TypeAddOwnerRole:         func() Change { return &AddOwnerRole{} },
	TypeRemoveOwnerRole:      func() Change { return &RemoveOwnerRole{} },
	TypeAddRole:              func() Change { return &AddRole{} },
	TypeRemoveRole:           func() Change { return &RemoveRole{} },
	TypeAddPeopleToRole:      func() Change { return &AddPeopleToRole{} },
	TypeRemovePeopleFromRole: func() Change { return &RemovePeopleFromRole{} },

	TypeEnableFoundational:  func() Change { return &EnableFoundational{} },
	TypeDisableFoundational: func() Change { return &DisableFoundational{} },
	TypeEnableGoverning:     func() Change { return &EnableGoverning{} },
	TypeDisableGoverning:    func() Change { return &DisableGoverning{} },
	TypeChangeOwner:         func() Change { return &ChangeOwner{} },

	TypeAddPermission:         func() Change { return &AddPermission{} },
	TypeRemovePermission:      func() Change { return &RemovePermission{} },
	TypeAddPermissionActor:    func() Change { return &AddPermissionActor{} },
	TypeRemovePermissionActor: func() Change { return &RemovePermissionActor{} },
	TypeAddPermissionRole:     func() Change { return &AddPermissionRole{} },
	TypeRemovePermissionRole:  func() Change { return &RemovePermissionRole{} },
	TypeSetPermissionInverse:  func() Change { return &SetPermissionInverse{} },
	TypeEnableAnyone:          func() Change { return &EnableAnyone{} },
	TypeDisableAnyone:         func() Change { return &DisableAnyone{} },

	TypeAddConditionTemplate:    func() Change { return &AddConditionTemplate{} },
	TypeRemoveConditionTemplate: func() Change { return &RemoveConditionTemplate{} },
	TypeApproveCondition:        func() Change { return &ApproveCondition{} },
	TypeRejectCondition:         func() Change { return &RejectCondition{} },
	TypeCastVote:                func() Change { return &CastVote{} },
	TypeRespondConsensus:        func() Change { return &RespondConsensus{} },
	TypeResolveConsensus:        func() Change { return &ResolveConsensus{} },

	TypeAddResource:        func() Change { return &AddResource{} },
	TypeChangeResourceName: func() Change { return &ChangeResourceName{} },
	TypeAddResourceItem:    func() Change { return &AddResourceItem{} },
	TypeRemoveResourceItem: func() Change { return &RemoveResourceItem{} },
	TypeRemoveResource:     func() Change { return &RemoveResource{} },
}

// Known reports whether the change type id is registered.
func Known(changeType string) bool {
	_, ok := registry[changeType]
	return ok
}

// Types lists every registered change type id, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode builds a change of the given type from its JSON payload.
func Decode(changeType, data string) (Change, error) {
	f, ok := registry[changeType]
	if !ok {
		return nil, domain.Validationf("unknown change type %s", changeType)
	}
	c := f()
	if data != "" {
		if err := json.Unmarshal([]byte(data), c); err != nil {
			return nil, domain.Validationf("invalid %s payload: %v", changeType, err)
		}
	}
	return c, nil
}

// Encode serializes a change's payload for persistence.
func Encode(c Change) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func communityTarget(target domain.Target) (*community.Community, error) {
	c, ok := target.(*community.Community)
	if !ok {
		return nil, domain.Validationf("this change must target a community")
	}
	return c, nil
}

func resourceTarget(target domain.Target) (*domain.Resource, error) {
	res, ok := target.(*domain.Resource)
	if !ok {
		return nil, domain.Validationf("this change must target a resource")
	}
	return res, nil
}

func permissionTarget(target domain.Target) (*perm.Permission, error) {
	p, ok := target.(*perm.Permission)
	if !ok {
		return nil, domain.Validationf("this change must target a permission")
	}
	return p, nil
}

func conditionTarget(target domain.Target) (*domain.ConditionInstance, error) {
	inst, ok := target.(*domain.ConditionInstance)
	if !ok {
		return nil, domain.Validationf("this change must target a condition")
	}
	return inst, nil
}

func configFlag(p *perm.Permission, key string) bool {
	v, ok := p.Configuration[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
