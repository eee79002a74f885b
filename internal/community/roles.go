package community

import (
	"agora/internal/domain"
)

// Protected role names; custom roles may not shadow them.
const (
	RoleMembers   = "members"
	RoleOwners    = "owners"
	RoleGovernors = "governors"
)

// Leadership holds the actors and roles granted an owner or governor
// designation. Role order is insertion order; the first matching role wins
// when reporting which role authorized an actor.
type Leadership struct {
	Actors []int64  `json:"actors"`
	Roles  []string `json:"roles"`
}

// Registry stores a community's membership and role assignments.
type Registry struct {
	Members   []int64            `json:"members"`
	Owners    Leadership         `json:"owners"`
	Governors Leadership         `json:"governors"`
	Custom    map[string][]int64 `json:"custom_roles"`
}

func NewRegistry() Registry {
	return Registry{Custom: map[string][]int64{}}
}

func (r *Registry) IsMember(actor int64) bool {
	return containsActor(r.Members, actor)
}

// IsOwner reports whether the actor holds an owner designation. The role
// return is nil when matched directly as an actor, otherwise it names the
// first configured owner role the actor holds.
func (r *Registry) IsOwner(actor int64) (bool, *string) {
	return r.holdsLeadership(r.Owners, actor)
}

func (r *Registry) IsGovernor(actor int64) (bool, *string) {
	return r.holdsLeadership(r.Governors, actor)
}

func (r *Registry) holdsLeadership(l Leadership, actor int64) (bool, *string) {
	if containsActor(l.Actors, actor) {
		return true, nil
	}
	for _, role := range l.Roles {
		if r.HasRole(role, actor) {
			matched := role
			return true, &matched
		}
	}
	return false, nil
}

// HasRole reports whether the actor holds the named role. The protected
// names resolve to membership and leadership checks.
func (r *Registry) HasRole(role string, actor int64) bool {
	switch role {
	case RoleMembers:
		return r.IsMember(actor)
	case RoleOwners:
		ok, _ := r.IsOwner(actor)
		return ok
	case RoleGovernors:
		ok, _ := r.IsGovernor(actor)
		return ok
	}
	return containsActor(r.Custom[role], actor)
}

// HasSpecificRole checks custom role membership only.
func (r *Registry) HasSpecificRole(role string, actor int64) bool {
	return containsActor(r.Custom[role], actor)
}

func (r *Registry) RoleNames() []string {
	names := make([]string, 0, len(r.Custom))
	for name := range r.Custom {
		names = append(names, name)
	}
	return names
}

func (r *Registry) AddMember(actor int64) error {
	return r.AddMembers([]int64{actor})
}

func (r *Registry) AddMembers(actors []int64) error {
	if err := validActors(actors); err != nil {
		return err
	}
	for _, a := range actors {
		if !containsActor(r.Members, a) {
			r.Members = append(r.Members, a)
		}
	}
	return nil
}

func (r *Registry) RemoveMember(actor int64) error {
	return r.RemoveMembers([]int64{actor})
}

func (r *Registry) RemoveMembers(actors []int64) error {
	if err := validActors(actors); err != nil {
		return err
	}
	next := r.Clone()
	for _, a := range actors {
		if !containsActor(next.Members, a) {
			return domain.Validationf("actor %d is not a member", a)
		}
		next.Members = removeActor(next.Members, a)
		next.Owners.Actors = removeActor(next.Owners.Actors, a)
		next.Governors.Actors = removeActor(next.Governors.Actors, a)
		for role, members := range next.Custom {
			next.Custom[role] = removeActor(members, a)
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

func (r *Registry) AddOwner(actor int64) error {
	if err := validActors([]int64{actor}); err != nil {
		return err
	}
	if !r.IsMember(actor) {
		return domain.Validationf("cannot make non-member %d an owner", actor)
	}
	if containsActor(r.Owners.Actors, actor) {
		return domain.Validationf("actor %d is already an owner", actor)
	}
	r.Owners.Actors = append(r.Owners.Actors, actor)
	return nil
}

func (r *Registry) RemoveOwner(actor int64) error {
	if !containsActor(r.Owners.Actors, actor) {
		return domain.Validationf("actor %d is not an owner", actor)
	}
	next := r.Clone()
	next.Owners.Actors = removeActor(next.Owners.Actors, actor)
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

func (r *Registry) AddOwnerRole(role string) error {
	if err := r.requireCustomRole(role); err != nil {
		return err
	}
	if containsRole(r.Owners.Roles, role) {
		return domain.Validationf("role %s is already an owner role", role)
	}
	r.Owners.Roles = append(r.Owners.Roles, role)
	return nil
}

func (r *Registry) RemoveOwnerRole(role string) error {
	if !containsRole(r.Owners.Roles, role) {
		return domain.Validationf("role %s is not an owner role", role)
	}
	next := r.Clone()
	next.Owners.Roles = removeRole(next.Owners.Roles, role)
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

func (r *Registry) AddGovernor(actor int64) error {
	if err := validActors([]int64{actor}); err != nil {
		return err
	}
	if !r.IsMember(actor) {
		return domain.Validationf("cannot make non-member %d a governor", actor)
	}
	if containsActor(r.Governors.Actors, actor) {
		return domain.Validationf("actor %d is already a governor", actor)
	}
	r.Governors.Actors = append(r.Governors.Actors, actor)
	return nil
}

func (r *Registry) RemoveGovernor(actor int64) error {
	if !containsActor(r.Governors.Actors, actor) {
		return domain.Validationf("actor %d is not a governor", actor)
	}
	r.Governors.Actors = removeActor(r.Governors.Actors, actor)
	return nil
}

func (r *Registry) AddGovernorRole(role string) error {
	if err := r.requireCustomRole(role); err != nil {
		return err
	}
	if containsRole(r.Governors.Roles, role) {
		return domain.Validationf("role %s is already a governor role", role)
	}
	r.Governors.Roles = append(r.Governors.Roles, role)
	return nil
}

func (r *Registry) RemoveGovernorRole(role string) error {
	if !containsRole(r.Governors.Roles, role) {
		return domain.Validationf("role %s is not a governor role", role)
	}
	r.Governors.Roles = removeRole(r.Governors.Roles, role)
	return nil
}

func (r *Registry) AddRole(role string) error {
	if err := validRoleName(role); err != nil {
		return err
	}
	if r.Custom == nil {
		r.Custom = map[string][]int64{}
	}
	if _, exists := r.Custom[role]; exists {
		return domain.Validationf("role %s already exists", role)
	}
	r.Custom[role] = []int64{}
	return nil
}

func (r *Registry) RemoveRole(role string) error {
	if err := validRoleName(role); err != nil {
		return err
	}
	if _, exists := r.Custom[role]; !exists {
		return domain.Validationf("role %s does not exist", role)
	}
	next := r.Clone()
	delete(next.Custom, role)
	next.Owners.Roles = removeRole(next.Owners.Roles, role)
	next.Governors.Roles = removeRole(next.Governors.Roles, role)
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

func (r *Registry) AddPeopleToRole(role string, actors []int64) error {
	if err := validActors(actors); err != nil {
		return err
	}
	members, exists := r.Custom[role]
	if !exists {
		return domain.Validationf("role %s does not exist", role)
	}
	for _, a := range actors {
		if !r.IsMember(a) {
			return domain.Validationf("cannot add non-member %d to role %s", a, role)
		}
		if !containsActor(members, a) {
			members = append(members, a)
		}
	}
	r.Custom[role] = members
	return nil
}

func (r *Registry) RemovePeopleFromRole(role string, actors []int64) error {
	if err := validActors(actors); err != nil {
		return err
	}
	members, exists := r.Custom[role]
	if !exists {
		return domain.Validationf("role %s does not exist", role)
	}
	next := r.Clone()
	for _, a := range actors {
		if !containsActor(members, a) {
			return domain.Validationf("actor %d is not in role %s", a, role)
		}
		next.Custom[role] = removeActor(next.Custom[role], a)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

// Validate enforces the registry invariants: referenced actors are members,
// custom roles do not shadow protected names, and at least one owner is
// resolvable.
func (r *Registry) Validate() error {
	for _, a := range r.Owners.Actors {
		if !r.IsMember(a) {
			return domain.Validationf("owner %d is not a member", a)
		}
	}
	for _, a := range r.Governors.Actors {
		if !r.IsMember(a) {
			return domain.Validationf("governor %d is not a member", a)
		}
	}
	for role, members := range r.Custom {
		if err := validRoleName(role); err != nil {
			return err
		}
		for _, a := range members {
			if !r.IsMember(a) {
				return domain.Validationf("actor %d in role %s is not a member", a, role)
			}
		}
	}
	if !r.hasResolvableOwner() {
		return domain.Validationf("community must have at least one owner")
	}
	return nil
}

func (r *Registry) hasResolvableOwner() bool {
	if len(r.Owners.Actors) > 0 {
		return true
	}
	for _, role := range r.Owners.Roles {
		if len(r.Custom[role]) > 0 {
			return true
		}
	}
	return false
}

func (r *Registry) requireCustomRole(role string) error {
	if err := validRoleName(role); err != nil {
		return err
	}
	if _, exists := r.Custom[role]; !exists {
		return domain.Validationf("role %s does not exist", role)
	}
	return nil
}

func (r *Registry) Clone() Registry {
	next := Registry{
		Members:   append([]int64(nil), r.Members...),
		Owners:    Leadership{Actors: append([]int64(nil), r.Owners.Actors...), Roles: append([]string(nil), r.Owners.Roles...)},
		Governors: Leadership{Actors: append([]int64(nil), r.Governors.Actors...), Roles: append([]string(nil), r.Governors.Roles...)},
		Custom:    map[string][]int64{},
	}
	for role, members := range r.Custom {
		next.Custom[role] = append([]int64(nil), members...)
	}
	return next
}

func validActors(actors []int64) error {
	if len(actors) == 0 {
		return domain.Validationf("no actors given")
	}
	for _, a := range actors {
		if a <= 0 {
			return domain.Validationf("invalid actor id %d", a)
		}
	}
	return nil
}

func validRoleName(role string) error {
	if role == "" {
		return domain.Validationf("role name must not be empty")
	}
	if role == RoleMembers || role == RoleOwners || role == RoleGovernors {
		return domain.Validationf("role name %s is protected", role)
	}
	return nil
}

func containsActor(list []int64, actor int64) bool {
	for _, a := range list {
		if a == actor {
			return true
		}
	}
	return false
}

func removeActor(list []int64, actor int64) []int64 {
	out := list[:0]
	for _, a := range list {
		if a != actor {
			out = append(out, a)
		}
	}
	return out
}

func containsRole(list []string, role string) bool {
	for _, r := range list {
		if r == role {
			return true
		}
	}
	return false
}

func removeRole(list []string, role string) []string {
	out := list[:0]
	for _, r := range list {
		if r != role {
			out = append(out, r)
		}
	}
	return out
}
