package condition

import (
	"encoding/json"
	"time"

	"agora/internal/domain"
)

// Condition types.
const (
	TypeApproval       = "approval"
	TypeVote           = "vote"
	TypeConsensus      = "consensus"
	TypeActorIsCreator = "actor_is_creator"
	TypeTargetTypeIs   = "target_type_is"
	TypeFieldEquals    = "field_equals"
	TypeActorHasRole   = "actor_has_role"
)

// Env carries the evaluation context a condition may need: the wall clock
// for deadlines, and the action/target/roles for filter predicates.
type Env struct {
	Now    time.Time
	Action *domain.Action
	Target domain.Target
	Roles  RoleChecker
}

type RoleChecker interface {
	HasRole(role string, actor int64) bool
}

type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Condition is one pluggable gate. Status never errors: a malformed state
// evaluates to rejected via its own rules, and filters never wait.
type Condition interface {
	Type() string
	Status(env Env) string
	DescriptionForPassing() string
	DisplayFields() []Field
}

var registry = map[string]func() Condition{
	TypeApproval:       func() Condition { return &Approval{} },
	TypeVote:           func() Condition { return &Vote{} },
	TypeConsensus:      func() Condition { return &Consensus{} },
	TypeActorIsCreator: func() Condition { return &ActorIsCreator{} },
	TypeTargetTypeIs:   func() Condition { return &TargetTypeIs{} },
	TypeFieldEquals:    func() Condition { return &FieldEquals{} },
	TypeActorHasRole:   func() Condition { return &ActorHasRole{} },
}

// Known reports whether the condition type is registered.
func Known(condType string) bool {
	_, ok := registry[condType]
	return ok
}

// Decode builds a condition of the given type from its state JSON. An empty
// state yields the zero value.
func Decode(condType, state string) (Condition, error) {
	factory, ok := registry[condType]
	if !ok {
		return nil, domain.Validationf("unknown condition type %s", condType)
	}
	c := factory()
	if state != "" {
		if err := json.Unmarshal([]byte(state), c); err != nil {
			return nil, domain.Validationf("invalid %s condition data: %v", condType, err)
		}
	}
	return c, nil
}

// Encode serializes a condition's state for persistence.
func Encode(c Condition) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ConfigurableFields lists the template-settable field names per type.
func ConfigurableFields(condType string) []string {
	switch condType {
	case TypeApproval:
		return []string{"self_approval_allowed"}
	case TypeVote:
		return []string{"require_majority", "allow_abstain", "voting_period_hours"}
	case TypeConsensus:
		return []string{"is_strict", "minimum_duration_hours", "participants"}
	case TypeActorIsCreator:
		return []string{"inverse"}
	case TypeTargetTypeIs:
		return []string{"target_kind", "inverse"}
	case TypeFieldEquals:
		return []string{"field", "value", "inverse"}
	case TypeActorHasRole:
		return []string{"role", "inverse"}
	}
	return nil
}
