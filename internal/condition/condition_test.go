package condition

import (
	"testing"
	"time"

	"agora/internal/domain"
)

var (
	voteStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	afterVote = voteStart.Add(200 * time.Hour)
)

func newVote(majority, allowAbstain bool) *Vote {
	return &Vote{
		RequireMajority: majority,
		AllowAbstain:    allowAbstain,
		PeriodHours:     168,
		StartedAt:       voteStart.Format(time.RFC3339),
	}
}

func castVotes(t *testing.T, v *Vote, yeas, nays, abstains int) {
	t.Helper()
	actor := int64(1)
	cast := func(choice string, n int) {
		for i := 0; i < n; i++ {
			if err := v.AddVote(actor, choice, voteStart.Add(time.Hour)); err != nil {
				t.Fatalf("vote %s: %v", choice, err)
			}
			actor++
		}
	}
	cast(VoteYea, yeas)
	cast(VoteNay, nays)
	cast(VoteAbstain, abstains)
}

func TestVoteWaitsUntilDeadline(t *testing.T) {
	v := newVote(false, true)
	castVotes(t, v, 5, 0, 0)
	if got := v.Status(Env{Now: voteStart.Add(time.Hour)}); got != domain.SubWaiting {
		t.Fatalf("before deadline: got %q", got)
	}
	if got := v.Status(Env{Now: afterVote}); got != domain.SubApproved {
		t.Fatalf("after deadline: got %q", got)
	}
}

func TestVoteMajorityBoundary(t *testing.T) {
	// Majority needs yeas to strictly exceed everyone else.
	v := newVote(true, true)
	castVotes(t, v, 3, 2, 1)
	if got := v.Status(Env{Now: afterVote}); got != domain.SubRejected {
		t.Fatalf("3 yeas vs 2+1 should reject, got %q", got)
	}

	v = newVote(true, true)
	castVotes(t, v, 4, 2, 1)
	if got := v.Status(Env{Now: afterVote}); got != domain.SubApproved {
		t.Fatalf("4 yeas vs 2+1 should approve, got %q", got)
	}
}

func TestVotePluralityBoundary(t *testing.T) {
	v := newVote(false, true)
	castVotes(t, v, 3, 2, 1)
	if got := v.Status(Env{Now: afterVote}); got != domain.SubApproved {
		t.Fatalf("plurality 3>2 and 3>1 should approve, got %q", got)
	}

	v = newVote(false, true)
	castVotes(t, v, 3, 3, 0)
	if got := v.Status(Env{Now: afterVote}); got != domain.SubRejected {
		t.Fatalf("tie should reject, got %q", got)
	}
}

func TestVoteRules(t *testing.T) {
	v := newVote(false, false)
	if err := v.AddVote(1, VoteYea, voteStart.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := v.AddVote(1, VoteNay, voteStart.Add(time.Hour)); err == nil {
		t.Fatalf("expected re-vote error")
	}
	if err := v.AddVote(2, VoteAbstain, voteStart.Add(time.Hour)); err == nil {
		t.Fatalf("expected abstain-not-allowed error")
	}
	if err := v.AddVote(3, VoteYea, afterVote); err == nil {
		t.Fatalf("expected deadline error")
	}
}

func TestApprovalLifecycle(t *testing.T) {
	a := &Approval{}
	if got := a.Status(Env{}); got != domain.SubWaiting {
		t.Fatalf("undecided approval should wait, got %q", got)
	}
	if err := a.Approve(5, 5); err == nil {
		t.Fatalf("expected self-approval error")
	}
	if err := a.Approve(6, 5); err != nil {
		t.Fatal(err)
	}
	if got := a.Status(Env{}); got != domain.SubApproved {
		t.Fatalf("got %q", got)
	}
	if err := a.Reject(7, 5); err == nil {
		t.Fatalf("expected already-decided error")
	}

	allowed := &Approval{SelfApprovalAllowed: true}
	if err := allowed.Approve(5, 5); err != nil {
		t.Fatalf("self-approval should be allowed here: %v", err)
	}

	r := &Approval{}
	if err := r.Reject(6, 5); err != nil {
		t.Fatal(err)
	}
	if got := r.Status(Env{}); got != domain.SubRejected {
		t.Fatalf("got %q", got)
	}
}

func TestConsensusOutcomes(t *testing.T) {
	c := &Consensus{Participants: []int64{1, 2, 3}, StartedAt: voteStart.Format(time.RFC3339)}
	if got := c.Status(Env{}); got != domain.SubWaiting {
		t.Fatalf("unresolved consensus should wait, got %q", got)
	}
	if err := c.Resolve(voteStart.Add(time.Hour)); err == nil {
		t.Fatalf("expected minimum-duration error")
	}
	if err := c.Respond(1, ResponseSupport); err != nil {
		t.Fatal(err)
	}
	if err := c.Respond(2, ResponseStandAside); err != nil {
		t.Fatal(err)
	}
	if err := c.Resolve(afterVote); err != nil {
		t.Fatal(err)
	}
	if got := c.Status(Env{}); got != domain.SubApproved {
		t.Fatalf("supported consensus should approve, got %q", got)
	}
	if err := c.Respond(3, ResponseBlock); err == nil {
		t.Fatalf("expected resolved error")
	}
}

func TestConsensusBlockAndStrict(t *testing.T) {
	blocked := &Consensus{Participants: []int64{1, 2}, Resolved: true,
		Responses: map[string]string{"1": ResponseSupport, "2": ResponseBlock}}
	if got := blocked.Status(Env{}); got != domain.SubRejected {
		t.Fatalf("a block should reject, got %q", got)
	}

	strict := &Consensus{Participants: []int64{1, 2}, IsStrict: true, Resolved: true,
		Responses: map[string]string{"1": ResponseSupport}}
	if got := strict.Status(Env{}); got != domain.SubRejected {
		t.Fatalf("strict without full participation should reject, got %q", got)
	}

	strict.Responses["2"] = ResponseStandAside
	if got := strict.Status(Env{}); got != domain.SubApproved {
		t.Fatalf("strict with full participation and support should approve, got %q", got)
	}
}

func TestConsensusStrictParticipants(t *testing.T) {
	strict := &Consensus{Participants: []int64{1}, IsStrict: true}
	if err := strict.Respond(9, ResponseSupport); err == nil {
		t.Fatalf("strict consensus should reject outside responders")
	}
	open := &Consensus{Participants: []int64{1}}
	if err := open.Respond(9, ResponseSupport); err != nil {
		t.Fatalf("open consensus should accept joiners: %v", err)
	}
	if !open.isParticipant(9) {
		t.Fatalf("joiner should become a participant")
	}
	if open.fullParticipation() {
		t.Fatalf("an unanswered participant should block full participation")
	}
	if err := open.Respond(1, ResponseStandAside); err != nil {
		t.Fatal(err)
	}
	if !open.fullParticipation() {
		t.Fatalf("all participants have responded")
	}
}

func TestFilterConditions(t *testing.T) {
	target := &domain.Resource{ID: 3, Name: "minutes", CommunityID: 1, CreatedBy: 5}
	act := &domain.Action{Actor: 5, ChangeData: `{"name":"minutes"}`}
	env := Env{Action: act, Target: target, Roles: staticRoles{"editors": 5}}

	creator := &ActorIsCreator{}
	if got := creator.Status(env); got != domain.SubApproved {
		t.Fatalf("creator filter: got %q", got)
	}
	creator.Inverse = true
	if got := creator.Status(env); got != domain.SubRejected {
		t.Fatalf("inverted creator filter: got %q", got)
	}

	kind := &TargetTypeIs{TargetKind: domain.KindResource}
	if got := kind.Status(env); got != domain.SubApproved {
		t.Fatalf("target type filter: got %q", got)
	}

	field := &FieldEquals{FieldName: "name", Value: "minutes"}
	if got := field.Status(env); got != domain.SubApproved {
		t.Fatalf("field equals filter: got %q", got)
	}
	field.Value = "agenda"
	if got := field.Status(env); got != domain.SubRejected {
		t.Fatalf("field mismatch: got %q", got)
	}

	role := &ActorHasRole{Role: "editors"}
	if got := role.Status(env); got != domain.SubApproved {
		t.Fatalf("role filter: got %q", got)
	}
}

// staticRoles maps a role name to the single actor holding it.
type staticRoles map[string]int64

func (s staticRoles) HasRole(role string, actor int64) bool {
	return s[role] == actor
}

func TestDecodeRoundTrip(t *testing.T) {
	v := newVote(true, false)
	state, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(TypeVote, state)
	if err != nil {
		t.Fatal(err)
	}
	back, ok := decoded.(*Vote)
	if !ok || !back.RequireMajority || back.StartedAt != v.StartedAt {
		t.Fatalf("round trip lost state: %+v", decoded)
	}
	if _, err := Decode("seance", ""); err == nil {
		t.Fatalf("expected unknown type error")
	}
}
