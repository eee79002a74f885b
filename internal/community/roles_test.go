package community

import "testing"

func seedRegistry(t *testing.T) Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.AddMembers([]int64{1, 2, 3}); err != nil {
		t.Fatalf("add members: %v", err)
	}
	if err := r.AddOwner(1); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if err := r.AddGovernor(2); err != nil {
		t.Fatalf("add governor: %v", err)
	}
	return r
}

func TestProtectedRoleResolution(t *testing.T) {
	r := seedRegistry(t)
	if !r.HasRole(RoleMembers, 3) {
		t.Fatalf("3 should resolve through members")
	}
	if !r.HasRole(RoleOwners, 1) || r.HasRole(RoleOwners, 2) {
		t.Fatalf("owners should resolve to actor 1 only")
	}
	if !r.HasRole(RoleGovernors, 2) || r.HasRole(RoleGovernors, 3) {
		t.Fatalf("governors should resolve to actor 2 only")
	}
}

func TestLeadershipThroughRoles(t *testing.T) {
	r := seedRegistry(t)
	if err := r.AddRole("elders"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPeopleToRole("elders", []int64{3}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddOwnerRole("elders"); err != nil {
		t.Fatal(err)
	}
	ok, role := r.IsOwner(3)
	if !ok || role == nil || *role != "elders" {
		t.Fatalf("expected owner through elders, got ok=%v role=%v", ok, role)
	}
	ok, role = r.IsOwner(1)
	if !ok || role != nil {
		t.Fatalf("direct owner should match with nil role, got ok=%v role=%v", ok, role)
	}
}

func TestNonMembersCannotLead(t *testing.T) {
	r := seedRegistry(t)
	if err := r.AddOwner(9); err == nil {
		t.Fatalf("expected error making non-member an owner")
	}
	if err := r.AddGovernor(9); err == nil {
		t.Fatalf("expected error making non-member a governor")
	}
	if err := r.AddRole("crew"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPeopleToRole("crew", []int64{9}); err == nil {
		t.Fatalf("expected error adding non-member to role")
	}
}

func TestLastOwnerCannotLeave(t *testing.T) {
	r := seedRegistry(t)
	if err := r.RemoveOwner(1); err == nil {
		t.Fatalf("expected error removing the only owner")
	}
	if err := r.RemoveMembers([]int64{1}); err == nil {
		t.Fatalf("expected error removing the only owner's membership")
	}
	// The failed removals must not change anything.
	if !r.IsMember(1) {
		t.Fatalf("actor 1 should still be a member")
	}
	if ok, _ := r.IsOwner(1); !ok {
		t.Fatalf("actor 1 should still be an owner")
	}
}

func TestRemoveMemberCascades(t *testing.T) {
	r := seedRegistry(t)
	if err := r.AddRole("editors"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPeopleToRole("editors", []int64{2}); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveMembers([]int64{2}); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if r.IsMember(2) {
		t.Fatalf("actor 2 should no longer be a member")
	}
	if ok, _ := r.IsGovernor(2); ok {
		t.Fatalf("removal should cascade out of governors")
	}
	if r.HasSpecificRole("editors", 2) {
		t.Fatalf("removal should cascade out of custom roles")
	}
}

func TestProtectedNamesCannotBeCustomRoles(t *testing.T) {
	r := seedRegistry(t)
	for _, name := range []string{RoleMembers, RoleOwners, RoleGovernors} {
		if err := r.AddRole(name); err == nil {
			t.Fatalf("expected error creating custom role %q", name)
		}
	}
}

func TestRemoveRoleKeepsOwnersResolvable(t *testing.T) {
	r := NewRegistry()
	if err := r.AddMembers([]int64{1}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddRole("chiefs"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPeopleToRole("chiefs", []int64{1}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddOwnerRole("chiefs"); err != nil {
		t.Fatal(err)
	}
	// chiefs is the only path to ownership, so it cannot be dropped.
	if err := r.RemoveRole("chiefs"); err == nil {
		t.Fatalf("expected error removing the only owner role")
	}
	if ok, _ := r.IsOwner(1); !ok {
		t.Fatalf("actor 1 should still own through chiefs")
	}
}

func TestDuplicateRoleAndMembership(t *testing.T) {
	r := seedRegistry(t)
	if err := r.AddRole("crew"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddRole("crew"); err == nil {
		t.Fatalf("expected duplicate role error")
	}
	if err := r.AddMembers([]int64{2}); err != nil {
		t.Fatalf("re-adding a member should be a no-op: %v", err)
	}
	if err := r.AddOwner(1); err == nil {
		t.Fatalf("expected duplicate owner error")
	}
}
