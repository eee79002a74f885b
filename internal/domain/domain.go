package domain

// Action statuses.
const (
	StatusDraft       = "draft"
	StatusSent        = "sent"
	StatusWaiting     = "waiting"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
	StatusImplemented = "implemented"
	StatusCreated     = "created"
)

// Pipeline names.
const (
	PipeFoundational = "foundational"
	PipeGoverning    = "governing"
	PipeSpecific     = "specific"
)

// Per-pipeline sub-statuses.
const (
	SubNotTested = "not tested"
	SubApproved  = "approved"
	SubRejected  = "rejected"
	SubWaiting   = "waiting"
)

// Target kinds.
const (
	KindCommunity  = "community"
	KindResource   = "resource"
	KindPermission = "permission"
	KindCondition  = "condition"
)

// ContainerDraft is a container's status before any processing run. After
// a run the status holds the aggregate outcome of its member actions.
const ContainerDraft = "draft"

// Ref is a polymorphic reference to a governable entity, stored as
// (kind, id) and resolved through a registry of typed accessors.
type Ref struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Target is any entity an Action can be taken on.
type Target interface {
	TargetRef() Ref
	DisplayName() string
	OwnerCommunityID() int64
	CreatorID() int64
	FoundationalEnabled() bool
	GoverningEnabled() bool
}

// Action is one proposed state change.
type Action struct {
	ID             int64      `json:"id"`
	Actor          int64      `json:"actor"`
	Target         Ref        `json:"target"`
	ChangeType     string     `json:"change_type"`
	ChangeData     string     `json:"change_data"`
	ContainerID    *int64     `json:"container_id,omitempty"`
	ContainerOrder int        `json:"container_order,omitempty"`
	Resolution     Resolution `json:"resolution"`
	Status         string     `json:"status"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
}

// Resource is a simple governable entity owned by a community. It carries
// its own pipeline flags, so a single resource can be locked down to owners
// or cut off from the governing fallback.
type Resource struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	CommunityID  int64    `json:"community_id"`
	Items        []string `json:"items,omitempty"`
	Foundational bool     `json:"foundational_permission_enabled,omitempty"`
	Governing    bool     `json:"governing_permission_enabled,omitempty"`
	CreatedBy    int64    `json:"created_by"`
	CreatedAt    string   `json:"created_at"`
}

func (r *Resource) TargetRef() Ref            { return Ref{Kind: KindResource, ID: r.ID} }
func (r *Resource) DisplayName() string       { return r.Name }
func (r *Resource) OwnerCommunityID() int64   { return r.CommunityID }
func (r *Resource) CreatorID() int64          { return r.CreatedBy }
func (r *Resource) FoundationalEnabled() bool { return r.Foundational }
func (r *Resource) GoverningEnabled() bool    { return r.Governing }

// ConditionTemplate configures a condition gate on a permission or on a
// community leadership role. At most one template exists per source.
type ConditionTemplate struct {
	ID             int64  `json:"id"`
	SourceID       string `json:"source_id"`
	SetOn          string `json:"set_on"` // permission | owner | governor
	CommunityID    *int64 `json:"community_id,omitempty"`
	PermissionID   *int64 `json:"permission_id,omitempty"`
	ConditionType  string `json:"condition_type"`
	ConditionData  string `json:"condition_data"`
	PermissionData string `json:"permission_data,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ConditionInstance holds per-action condition state. One exists per
// (action, source_id) pair.
type ConditionInstance struct {
	ID            int64  `json:"id"`
	ActionID      int64  `json:"action_id"`
	SourceID      string `json:"source_id"`
	CommunityID   int64  `json:"community_id"`
	ConditionType string `json:"condition_type"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
}

func (c *ConditionInstance) TargetRef() Ref            { return Ref{Kind: KindCondition, ID: c.ID} }
func (c *ConditionInstance) DisplayName() string       { return c.ConditionType + " condition" }
func (c *ConditionInstance) OwnerCommunityID() int64   { return c.CommunityID }
func (c *ConditionInstance) CreatorID() int64          { return 0 }
func (c *ConditionInstance) FoundationalEnabled() bool { return false }
func (c *ConditionInstance) GoverningEnabled() bool    { return true }

// Container groups actions that resolve and commit together.
type Container struct {
	ID        int64  `json:"id"`
	Key       string `json:"key"`
	Status    string `json:"status"`
	Summary   string `json:"summary,omitempty"`
	CreatedBy int64  `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// ContainerSummaryEntry records one member action's outcome during a
// container run.
type ContainerSummaryEntry struct {
	ActionID int64  `json:"action_id"`
	Status   string `json:"status"`
	Log      string `json:"log,omitempty"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	CommunityID int64  `json:"community_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     int64  `json:"actor_id"`
	Payload     string `json:"payload_json"`
}
