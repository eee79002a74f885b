package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"agora/internal/change"
	"agora/internal/config"
	"agora/internal/db"
	"agora/internal/domain"
	"agora/internal/engine"
	"agora/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return now }
	return testEnv{Engine: eng, Ctx: context.Background(), Clock: &now}
}

func (env testEnv) take(t *testing.T, actor int64, target domain.Ref, changeType, data string) domain.Action {
	t.Helper()
	ch, err := change.Decode(changeType, data)
	if err != nil {
		t.Fatalf("decode %s: %v", changeType, err)
	}
	act, err := env.Engine.Take(env.Ctx, actor, target, ch)
	if err != nil {
		t.Fatalf("take %s: %v", changeType, err)
	}
	return act
}

func communityRef(id int64) domain.Ref {
	return domain.Ref{Kind: domain.KindCommunity, ID: id}
}

func resourceRef(id int64) domain.Ref {
	return domain.Ref{Kind: domain.KindResource, ID: id}
}

func TestCreatorGovernsNewCommunity(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatalf("create community: %v", err)
	}
	if !comm.Roles.IsMember(1) {
		t.Fatalf("creator should be a member")
	}
	if ok, _ := comm.Roles.IsOwner(1); !ok {
		t.Fatalf("creator should be an owner")
	}
	if ok, _ := comm.Roles.IsGovernor(1); !ok {
		t.Fatalf("creator should be a governor")
	}

	act := env.take(t, 1, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("status = %q, log = %q", act.Status, act.Resolution.LastLog())
	}
	if act.Resolution.ApprovedThrough != domain.PipeGoverning {
		t.Fatalf("approved through %q", act.Resolution.ApprovedThrough)
	}
	got, err := env.Engine.Repo.GetCommunity(env.Ctx, comm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "senate" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestOutsiderIsRejected(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	act := env.take(t, 9, communityRef(comm.ID), change.TypeChangeName, `{"name":"coup"}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("status = %q", act.Status)
	}
	got, _ := env.Engine.Repo.GetCommunity(env.Ctx, comm.ID)
	if got.Name != "assembly" {
		t.Fatalf("rejected action must not mutate, name = %q", got.Name)
	}
}

func TestSpecificPermissionBeatsGoverning(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	act := env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"community.change_name","roles":["members"]}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("add permission: %q, log %q", act.Status, act.Resolution.LastLog())
	}

	act = env.take(t, 2, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("member rename: %q, log %q", act.Status, act.Resolution.LastLog())
	}
	if act.Resolution.ApprovedThrough != domain.PipeSpecific || act.Resolution.ApprovedRole != "members" {
		t.Fatalf("approved through %q role %q", act.Resolution.ApprovedThrough, act.Resolution.ApprovedRole)
	}
}

func TestFoundationalRunsAlone(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddGovernor, `{"governor":2}`)

	// Adding an owner is foundational; being a governor must not help.
	act := env.take(t, 2, communityRef(comm.ID), change.TypeAddOwner, `{"owner":2}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("status = %q", act.Status)
	}
	if act.Resolution.Foundational != domain.SubRejected {
		t.Fatalf("foundational = %q", act.Resolution.Foundational)
	}
	if act.Resolution.Governing != domain.SubNotTested || act.Resolution.Specific != domain.SubNotTested {
		t.Fatalf("foundational rejection must foreclose the other pipelines: %+v", act.Resolution)
	}

	act = env.take(t, 1, communityRef(comm.ID), change.TypeAddOwner, `{"owner":2}`)
	if act.Status != domain.StatusImplemented || act.Resolution.ApprovedThrough != domain.PipeFoundational {
		t.Fatalf("owner add: %q through %q", act.Status, act.Resolution.ApprovedThrough)
	}
}

func TestFoundationalFlagOverridesSpecific(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"community.change_name","roles":["members"]}`)
	lockdown := env.take(t, 1, communityRef(comm.ID), change.TypeEnableFoundational, `{}`)
	if lockdown.Status != domain.StatusImplemented {
		t.Fatalf("enable foundational: %q, log %q", lockdown.Status, lockdown.Resolution.LastLog())
	}

	// With the flag up, the member's matching permission is never consulted.
	act := env.take(t, 2, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("status = %q", act.Status)
	}
	if act.Resolution.Specific != domain.SubNotTested {
		t.Fatalf("specific pipeline should not run under lockdown: %+v", act.Resolution)
	}

	release := env.take(t, 1, communityRef(comm.ID), change.TypeDisableFoundational, `{}`)
	if release.Status != domain.StatusImplemented {
		t.Fatalf("disable foundational: %q", release.Status)
	}
	act = env.take(t, 2, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("after release: %q, log %q", act.Status, act.Resolution.LastLog())
	}
}

func TestValidationFailureIsRecoverable(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	act := env.take(t, 1, communityRef(comm.ID), change.TypeRemoveMembers, `{"members":[9]}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("status = %q", act.Status)
	}
	if act.Resolution.LastLog() == "" {
		t.Fatalf("validation failure should be logged")
	}

	// Once the member exists the same action passes on retry.
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[9]}`)
	retried, err := env.Engine.RetryAction(env.Ctx, act.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retried.Status != domain.StatusImplemented {
		t.Fatalf("retry: %q, log %q", retried.Status, retried.Resolution.LastLog())
	}
}

// setupGatedRename builds a community where member 2 may rename it, but
// only after an approval condition on that permission passes. Returns the
// waiting rename action and the materialized condition instance.
func setupGatedRename(t *testing.T, env testEnv, permissionData string) (domain.Action, domain.ConditionInstance) {
	t.Helper()
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	permAct := env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"community.change_name","roles":["members"]}`)
	if permAct.Status != domain.StatusImplemented {
		t.Fatalf("add permission: %q", permAct.Status)
	}
	perms, err := env.Engine.Repo.ListPermissionsOn(env.Ctx, communityRef(comm.ID))
	if err != nil || len(perms) != 1 {
		t.Fatalf("expected one permission, got %d (%v)", len(perms), err)
	}

	tmplAct := env.take(t, 1, domain.Ref{Kind: domain.KindPermission, ID: perms[0].ID},
		change.TypeAddConditionTemplate,
		`{"set_on":"permission","condition_type":"approval","condition_data":"{}","permission_data":`+permissionData+`}`)
	if tmplAct.Status != domain.StatusImplemented {
		t.Fatalf("add template: %q, log %q", tmplAct.Status, tmplAct.Resolution.LastLog())
	}

	act := env.take(t, 2, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusWaiting {
		t.Fatalf("gated rename should wait, got %q, log %q", act.Status, act.Resolution.LastLog())
	}
	insts, err := env.Engine.Repo.ListInstancesForAction(env.Ctx, act.ID)
	if err != nil || len(insts) != 1 {
		t.Fatalf("expected one condition instance, got %d (%v)", len(insts), err)
	}
	return act, insts[0]
}

func TestApprovalConditionGatesAndResumes(t *testing.T) {
	env := newTestEnv(t)
	gated, inst := setupGatedRename(t, env, `"[{\"change_type\":\"condition.approve\",\"actors\":[1]}]"`)

	// Approving the condition implements the approval change and retries
	// the gated action in the same run.
	approveAct := env.take(t, 1, domain.Ref{Kind: domain.KindCondition, ID: inst.ID}, change.TypeApproveCondition, `{}`)
	if approveAct.Status != domain.StatusImplemented {
		t.Fatalf("approve: %q, log %q", approveAct.Status, approveAct.Resolution.LastLog())
	}
	resumed, err := env.Engine.Repo.GetAction(env.Ctx, gated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != domain.StatusImplemented {
		t.Fatalf("gated action should resume to implemented, got %q, log %q", resumed.Status, resumed.Resolution.LastLog())
	}
	if resumed.Resolution.ApprovedCondition == "" {
		t.Fatalf("resolution should record the passing condition")
	}
}

func TestDuplicateConditionMaterialization(t *testing.T) {
	env := newTestEnv(t)
	gated, _ := setupGatedRename(t, env, `"[{\"change_type\":\"condition.approve\",\"actors\":[1]}]"`)

	// Re-resolving the waiting action must not spawn a second instance.
	if _, err := env.Engine.RetryAction(env.Ctx, gated.ID); err != nil {
		t.Fatal(err)
	}
	insts, err := env.Engine.Repo.ListInstancesForAction(env.Ctx, gated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 1 {
		t.Fatalf("expected one instance after retry, got %d", len(insts))
	}
}

func TestRejectedConditionRejectsAction(t *testing.T) {
	env := newTestEnv(t)
	gated, inst := setupGatedRename(t, env, `"[{\"change_type\":\"condition.reject\",\"actors\":[1]}]"`)

	rejectAct := env.take(t, 1, domain.Ref{Kind: domain.KindCondition, ID: inst.ID}, change.TypeRejectCondition, `{}`)
	if rejectAct.Status != domain.StatusImplemented {
		t.Fatalf("reject: %q, log %q", rejectAct.Status, rejectAct.Resolution.LastLog())
	}
	resumed, err := env.Engine.Repo.GetAction(env.Ctx, gated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != domain.StatusRejected {
		t.Fatalf("gated action should reject, got %q", resumed.Status)
	}
}

func TestTemplateRemovalUnblocksWaiting(t *testing.T) {
	env := newTestEnv(t)
	gated, _ := setupGatedRename(t, env, `"[]"`)

	perms, err := env.Engine.Repo.ListPermissionsOn(env.Ctx, gated.Target)
	if err != nil || len(perms) != 1 {
		t.Fatalf("permissions: %d (%v)", len(perms), err)
	}
	removal := env.take(t, 1, domain.Ref{Kind: domain.KindPermission, ID: perms[0].ID},
		change.TypeRemoveConditionTemplate, `{"set_on":"permission"}`)
	if removal.Status != domain.StatusImplemented {
		t.Fatalf("remove template: %q, log %q", removal.Status, removal.Resolution.LastLog())
	}

	resumed, err := env.Engine.RetryAction(env.Ctx, gated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != domain.StatusImplemented {
		t.Fatalf("retry after template removal: %q", resumed.Status)
	}
}

func TestVoteConditionEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2,3]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"resource.add","roles":["members"]}`)
	perms, err := env.Engine.Repo.ListPermissionsOn(env.Ctx, communityRef(comm.ID))
	if err != nil || len(perms) != 1 {
		t.Fatalf("permissions: %d (%v)", len(perms), err)
	}
	env.take(t, 1, domain.Ref{Kind: domain.KindPermission, ID: perms[0].ID},
		change.TypeAddConditionTemplate,
		`{"set_on":"permission","condition_type":"vote","condition_data":"{\"require_majority\":true}","permission_data":"[{\"change_type\":\"condition.cast_vote\",\"roles\":[\"members\"]}]"}`)

	act := env.take(t, 2, communityRef(comm.ID), change.TypeAddResource, `{"name":"library"}`)
	if act.Status != domain.StatusWaiting {
		t.Fatalf("resource add should wait on vote, got %q", act.Status)
	}
	insts, err := env.Engine.Repo.ListInstancesForAction(env.Ctx, act.ID)
	if err != nil || len(insts) != 1 {
		t.Fatalf("instances: %d (%v)", len(insts), err)
	}
	instRef := domain.Ref{Kind: domain.KindCondition, ID: insts[0].ID}

	for _, voter := range []int64{1, 2, 3} {
		v := env.take(t, voter, instRef, change.TypeCastVote, `{"vote":"yea"}`)
		if v.Status != domain.StatusImplemented {
			t.Fatalf("vote by %d: %q, log %q", voter, v.Status, v.Resolution.LastLog())
		}
	}

	// Votes only settle after the period ends.
	waiting, err := env.Engine.Repo.GetAction(env.Ctx, act.ID)
	if err != nil || waiting.Status != domain.StatusWaiting {
		t.Fatalf("still within period, got %q (%v)", waiting.Status, err)
	}
	*env.Clock = env.Clock.Add(169 * time.Hour)
	resumed, err := env.Engine.RetryAction(env.Ctx, act.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != domain.StatusImplemented {
		t.Fatalf("after deadline: %q, log %q", resumed.Status, resumed.Resolution.LastLog())
	}
	resources, err := env.Engine.Repo.ListResources(env.Ctx, comm.ID)
	if err != nil || len(resources) != 1 || resources[0].Name != "library" {
		t.Fatalf("resource should exist after vote, got %v (%v)", resources, err)
	}
}

func TestContainerAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	rename, _ := change.Decode(change.TypeChangeName, `{"name":"senate"}`)
	badRemove, _ := change.Decode(change.TypeRemoveMembers, `{"members":[9]}`)

	cont, err := env.Engine.CreateContainer(env.Ctx, 1, []engine.ContainerItem{
		{Target: communityRef(comm.ID), Change: rename},
		{Target: communityRef(comm.ID), Change: badRemove},
	})
	if err != nil {
		t.Fatal(err)
	}
	cont, err = env.Engine.ProcessPermanently(env.Ctx, cont.Key)
	if err != nil {
		t.Fatal(err)
	}
	if cont.Status != domain.StatusRejected {
		t.Fatalf("container = %q", cont.Status)
	}
	got, _ := env.Engine.Repo.GetCommunity(env.Ctx, comm.ID)
	if got.Name != "assembly" {
		t.Fatalf("no member of a rejected container may land, name = %q", got.Name)
	}

	addMember, _ := change.Decode(change.TypeAddMembers, `{"members":[2]}`)
	rename2, _ := change.Decode(change.TypeChangeName, `{"name":"senate"}`)
	cont2, err := env.Engine.CreateContainer(env.Ctx, 1, []engine.ContainerItem{
		{Target: communityRef(comm.ID), Change: addMember},
		{Target: communityRef(comm.ID), Change: rename2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cont2, err = env.Engine.ProcessProvisionally(env.Ctx, cont2.Key); err != nil {
		t.Fatal(err)
	}
	if cont2.Status != domain.StatusApproved {
		t.Fatalf("provisional run should approve without landing, got %q", cont2.Status)
	}
	got, _ = env.Engine.Repo.GetCommunity(env.Ctx, comm.ID)
	if got.Name != "assembly" || got.Roles.IsMember(2) {
		t.Fatalf("provisional run must not mutate")
	}

	if cont2, err = env.Engine.ProcessPermanently(env.Ctx, cont2.Key); err != nil {
		t.Fatal(err)
	}
	if cont2.Status != domain.StatusImplemented {
		t.Fatalf("permanent run: %q", cont2.Status)
	}
	got, _ = env.Engine.Repo.GetCommunity(env.Ctx, comm.ID)
	if got.Name != "senate" || !got.Roles.IsMember(2) {
		t.Fatalf("permanent run should land both actions: %+v", got)
	}
}

func TestRemovePermission(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"community.change_name","roles":["members"]}`)
	perms, err := env.Engine.Repo.ListPermissionsOn(env.Ctx, communityRef(comm.ID))
	if err != nil || len(perms) != 1 {
		t.Fatalf("permissions: %d (%v)", len(perms), err)
	}

	// Plain permission, no condition template attached.
	removal := env.take(t, 1, domain.Ref{Kind: domain.KindPermission, ID: perms[0].ID},
		change.TypeRemovePermission, `{}`)
	if removal.Status != domain.StatusImplemented {
		t.Fatalf("remove: %q, log %q", removal.Status, removal.Resolution.LastLog())
	}
	perms, err = env.Engine.Repo.ListPermissionsOn(env.Ctx, communityRef(comm.ID))
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 0 {
		t.Fatalf("permission should be gone, found %d", len(perms))
	}

	act := env.take(t, 2, communityRef(comm.ID), change.TypeChangeName, `{"name":"senate"}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("member should lose the grant, got %q", act.Status)
	}
}

func TestRemovePermissionTakesTemplate(t *testing.T) {
	env := newTestEnv(t)
	gated, _ := setupGatedRename(t, env, `"[]"`)

	perms, err := env.Engine.Repo.ListPermissionsOn(env.Ctx, gated.Target)
	if err != nil || len(perms) != 1 {
		t.Fatalf("permissions: %d (%v)", len(perms), err)
	}
	removal := env.take(t, 1, domain.Ref{Kind: domain.KindPermission, ID: perms[0].ID},
		change.TypeRemovePermission, `{}`)
	if removal.Status != domain.StatusImplemented {
		t.Fatalf("remove with template: %q, log %q", removal.Status, removal.Resolution.LastLog())
	}

	// Permission and its template are gone, so the waiting rename falls
	// back to the governing pipeline and rejects for a plain member.
	resumed, err := env.Engine.RetryAction(env.Ctx, gated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != domain.StatusRejected {
		t.Fatalf("retry after permission removal: %q", resumed.Status)
	}
}

func TestResourcePipelineFlags(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddResource, `{"name":"library"}`)
	resources, err := env.Engine.Repo.ListResources(env.Ctx, comm.ID)
	if err != nil || len(resources) != 1 {
		t.Fatalf("resources: %d (%v)", len(resources), err)
	}
	res := resources[0]
	if res.Foundational || !res.Governing {
		t.Fatalf("fresh resource flags: foundational=%v governing=%v", res.Foundational, res.Governing)
	}

	env.take(t, 1, resourceRef(res.ID), change.TypeAddPermission,
		`{"change_type":"resource.add_item","roles":["members"]}`)
	act := env.take(t, 2, resourceRef(res.ID), change.TypeAddResourceItem, `{"item":"atlas"}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("member add item: %q, log %q", act.Status, act.Resolution.LastLog())
	}

	lockdown := env.take(t, 1, resourceRef(res.ID), change.TypeEnableFoundational, `{}`)
	if lockdown.Status != domain.StatusImplemented {
		t.Fatalf("enable foundational on resource: %q, log %q", lockdown.Status, lockdown.Resolution.LastLog())
	}
	got, err := env.Engine.Repo.GetResource(env.Ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Foundational {
		t.Fatalf("foundational flag should persist")
	}

	// Under lockdown the member's matching permission is never consulted.
	act = env.take(t, 2, resourceRef(res.ID), change.TypeAddResourceItem, `{"item":"globe"}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("lockdown: %q", act.Status)
	}
	if act.Resolution.Specific != domain.SubNotTested {
		t.Fatalf("specific pipeline should not run under lockdown: %+v", act.Resolution)
	}

	env.take(t, 1, resourceRef(res.ID), change.TypeDisableFoundational, `{}`)
	cutoff := env.take(t, 1, resourceRef(res.ID), change.TypeDisableGoverning, `{}`)
	if cutoff.Status != domain.StatusImplemented {
		t.Fatalf("disable governing on resource: %q", cutoff.Status)
	}

	// No specific permission covers renames, and the governing fallback
	// is off for this resource, so even the governor is rejected.
	act = env.take(t, 1, resourceRef(res.ID), change.TypeChangeResourceName, `{"name":"archive"}`)
	if act.Status != domain.StatusRejected {
		t.Fatalf("governing disabled: %q, log %q", act.Status, act.Resolution.LastLog())
	}
	act = env.take(t, 2, resourceRef(res.ID), change.TypeAddResourceItem, `{"item":"globe"}`)
	if act.Status != domain.StatusImplemented {
		t.Fatalf("specific permission should still work: %q, log %q", act.Status, act.Resolution.LastLog())
	}
}

func TestChangeResourceOwnerPersists(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.CreateCommunity(env.Ctx, "senate", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(first.ID), change.TypeAddResource, `{"name":"library"}`)
	resources, err := env.Engine.Repo.ListResources(env.Ctx, first.ID)
	if err != nil || len(resources) != 1 {
		t.Fatalf("resources: %d (%v)", len(resources), err)
	}

	move := env.take(t, 1, resourceRef(resources[0].ID), change.TypeChangeOwner,
		fmt.Sprintf(`{"new_community_id":%d}`, second.ID))
	if move.Status != domain.StatusImplemented {
		t.Fatalf("change owner: %q, log %q", move.Status, move.Resolution.LastLog())
	}
	got, err := env.Engine.Repo.GetResource(env.Ctx, resources[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CommunityID != second.ID {
		t.Fatalf("resource should belong to community %d, got %d", second.ID, got.CommunityID)
	}
}

func TestInversePermission(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddMembers, `{"members":[2,3]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddRole, `{"role":"muted"}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPeopleToRole, `{"role":"muted","people":[3]}`)
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"resource.add","roles":["muted"],"inverse":true}`)

	allowed := env.take(t, 2, communityRef(comm.ID), change.TypeAddResource, `{"name":"library"}`)
	if allowed.Status != domain.StatusImplemented {
		t.Fatalf("non-muted member: %q, log %q", allowed.Status, allowed.Resolution.LastLog())
	}
	denied := env.take(t, 3, communityRef(comm.ID), change.TypeAddResource, `{"name":"armory"}`)
	if denied.Status != domain.StatusRejected {
		t.Fatalf("muted member should be rejected, got %q", denied.Status)
	}
}

func TestSelfOnlyConfiguration(t *testing.T) {
	env := newTestEnv(t)
	comm, err := env.Engine.CreateCommunity(env.Ctx, "assembly", 1)
	if err != nil {
		t.Fatal(err)
	}
	env.take(t, 1, communityRef(comm.ID), change.TypeAddPermission,
		`{"change_type":"community.add_members","anyone":true,"configuration":{"self_only":true}}`)

	joined := env.take(t, 5, communityRef(comm.ID), change.TypeAddMembers, `{"members":[5]}`)
	if joined.Status != domain.StatusImplemented {
		t.Fatalf("self-join: %q, log %q", joined.Status, joined.Resolution.LastLog())
	}
	smuggled := env.take(t, 5, communityRef(comm.ID), change.TypeAddMembers, `{"members":[6]}`)
	if smuggled.Status != domain.StatusRejected {
		t.Fatalf("adding someone else should be rejected, got %q", smuggled.Status)
	}
}
