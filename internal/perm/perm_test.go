package perm

import "testing"

// fakeRoles answers role checks from a static role -> actors table.
type fakeRoles map[string][]int64

func (f fakeRoles) HasRole(role string, actor int64) bool {
	for _, a := range f[role] {
		if a == actor {
			return true
		}
	}
	return false
}

func TestNormalizeAutoActivation(t *testing.T) {
	p := &Permission{ChangeType: "community.change_name"}
	p.Normalize()
	if p.IsActive {
		t.Fatalf("empty permission should be inactive")
	}
	if err := p.AddActor(5); err != nil {
		t.Fatal(err)
	}
	if !p.IsActive {
		t.Fatalf("adding an actor should activate")
	}
	if err := p.RemoveActor(5); err != nil {
		t.Fatal(err)
	}
	if p.IsActive {
		t.Fatalf("removing the last actor should deactivate")
	}
	if err := p.AddRole("members"); err != nil {
		t.Fatal(err)
	}
	if !p.IsActive {
		t.Fatalf("adding a role should reactivate")
	}
}

func TestSatisfiesActorAndRole(t *testing.T) {
	roles := fakeRoles{"editors": {7}}
	p := &Permission{Actors: []int64{5}, Roles: []string{"editors"}}

	ok, role := Satisfies(roles, 5, p)
	if !ok || role != "" {
		t.Fatalf("direct actor match should report empty role, got %v %q", ok, role)
	}
	ok, role = Satisfies(roles, 7, p)
	if !ok || role != "editors" {
		t.Fatalf("role match should name the role, got %v %q", ok, role)
	}
	ok, _ = Satisfies(roles, 9, p)
	if ok {
		t.Fatalf("unmatched actor should not satisfy")
	}
}

func TestSatisfiesAnyone(t *testing.T) {
	p := &Permission{Anyone: true}
	ok, role := Satisfies(fakeRoles{}, 42, p)
	if !ok || role != "anyone" {
		t.Fatalf("anyone should match everyone, got %v %q", ok, role)
	}
}

func TestSatisfiesInverse(t *testing.T) {
	roles := fakeRoles{"editors": {7}}
	p := &Permission{Roles: []string{"editors"}, Inverse: true}

	ok, role := Satisfies(roles, 7, p)
	if ok || role != "NOT editors" {
		t.Fatalf("inverse should reject matched role as NOT editors, got %v %q", ok, role)
	}
	ok, _ = Satisfies(roles, 9, p)
	if !ok {
		t.Fatalf("inverse should accept the unmatched actor")
	}
}

func TestAnyoneShortCircuitsInverse(t *testing.T) {
	p := &Permission{Anyone: true, Inverse: true}
	ok, role := Satisfies(fakeRoles{}, 7, p)
	if !ok || role != "anyone" {
		t.Fatalf("anyone takes precedence over inverse, got %v %q", ok, role)
	}
}

func TestDuplicateGrants(t *testing.T) {
	p := &Permission{}
	if err := p.AddActor(5); err != nil {
		t.Fatal(err)
	}
	if err := p.AddActor(5); err == nil {
		t.Fatalf("expected duplicate actor error")
	}
	if err := p.RemoveActor(6); err == nil {
		t.Fatalf("expected missing actor error")
	}
	if err := p.AddRole("editors"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddRole("editors"); err == nil {
		t.Fatalf("expected duplicate role error")
	}
}
