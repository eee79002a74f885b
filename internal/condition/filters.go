package condition

import (
	"encoding/json"
	"fmt"

	"agora/internal/domain"
)

// Filter conditions are stateless predicates over the action. They never
// produce waiting: the predicate either holds or it does not. Each carries
// an inverse toggle flipping the result.

func filterStatus(passes, inverse bool) string {
	if passes != inverse {
		return domain.SubApproved
	}
	return domain.SubRejected
}

// ActorIsCreator passes when the acting actor created the target ("self
// only" when the target is an actor-owned record).
type ActorIsCreator struct {
	Inverse bool `json:"inverse,omitempty"`
}

func (f *ActorIsCreator) Type() string { return TypeActorIsCreator }

func (f *ActorIsCreator) Status(env Env) string {
	passes := env.Target != nil && env.Action != nil && env.Target.CreatorID() == env.Action.Actor
	return filterStatus(passes, f.Inverse)
}

func (f *ActorIsCreator) DescriptionForPassing() string {
	if f.Inverse {
		return "the actor must not be the creator of the target"
	}
	return "the actor must be the creator of the target"
}

func (f *ActorIsCreator) DisplayFields() []Field {
	return []Field{{Name: "inverse", Value: f.Inverse}}
}

// TargetTypeIs passes when the action's target has the configured kind.
type TargetTypeIs struct {
	TargetKind string `json:"target_kind"`
	Inverse    bool   `json:"inverse,omitempty"`
}

func (f *TargetTypeIs) Type() string { return TypeTargetTypeIs }

func (f *TargetTypeIs) Status(env Env) string {
	passes := env.Target != nil && env.Target.TargetRef().Kind == f.TargetKind
	return filterStatus(passes, f.Inverse)
}

func (f *TargetTypeIs) DescriptionForPassing() string {
	return fmt.Sprintf("the target must be a %s", f.TargetKind)
}

func (f *TargetTypeIs) DisplayFields() []Field {
	return []Field{{Name: "target_kind", Value: f.TargetKind}, {Name: "inverse", Value: f.Inverse}}
}

// FieldEquals passes when a field in the change payload equals the
// configured value.
type FieldEquals struct {
	FieldName string `json:"field"`
	Value     string `json:"value"`
	Inverse   bool   `json:"inverse,omitempty"`
}

func (f *FieldEquals) Type() string { return TypeFieldEquals }

func (f *FieldEquals) Status(env Env) string {
	passes := false
	if env.Action != nil && env.Action.ChangeData != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(env.Action.ChangeData), &payload); err == nil {
			if v, ok := payload[f.FieldName]; ok {
				passes = fmt.Sprint(v) == f.Value
			}
		}
	}
	return filterStatus(passes, f.Inverse)
}

func (f *FieldEquals) DescriptionForPassing() string {
	return fmt.Sprintf("the change field %s must equal %s", f.FieldName, f.Value)
}

func (f *FieldEquals) DisplayFields() []Field {
	return []Field{{Name: "field", Value: f.FieldName}, {Name: "value", Value: f.Value}, {Name: "inverse", Value: f.Inverse}}
}

// ActorHasRole passes when the acting actor holds the configured role in
// the community owning the target.
type ActorHasRole struct {
	Role    string `json:"role"`
	Inverse bool   `json:"inverse,omitempty"`
}

func (f *ActorHasRole) Type() string { return TypeActorHasRole }

func (f *ActorHasRole) Status(env Env) string {
	passes := env.Roles != nil && env.Action != nil && env.Roles.HasRole(f.Role, env.Action.Actor)
	return filterStatus(passes, f.Inverse)
}

func (f *ActorHasRole) DescriptionForPassing() string {
	return fmt.Sprintf("the actor must have the role %s", f.Role)
}

func (f *ActorHasRole) DisplayFields() []Field {
	return []Field{{Name: "role", Value: f.Role}, {Name: "inverse", Value: f.Inverse}}
}
