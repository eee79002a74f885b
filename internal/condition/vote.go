package condition

import (
	"fmt"
	"time"

	"agora/internal/domain"
)

// Vote choices.
const (
	VoteYea     = "yea"
	VoteNay     = "nay"
	VoteAbstain = "abstain"
)

// Vote accumulates yea/nay/abstain tallies until its deadline passes. Each
// actor votes at most once; re-voting is an error, not an overwrite.
type Vote struct {
	Yeas            int     `json:"yeas"`
	Nays            int     `json:"nays"`
	Abstains        int     `json:"abstains"`
	Voted           []int64 `json:"voted,omitempty"`
	RequireMajority bool    `json:"require_majority,omitempty"`
	AllowAbstain    bool    `json:"allow_abstain,omitempty"`
	PeriodHours     float64 `json:"voting_period_hours,omitempty"`
	StartedAt       string  `json:"started_at,omitempty"`
}

func (v *Vote) Type() string { return TypeVote }

func (v *Vote) Deadline() time.Time {
	start, err := time.Parse(time.RFC3339, v.StartedAt)
	if err != nil {
		return time.Time{}
	}
	return start.Add(time.Duration(v.PeriodHours * float64(time.Hour)))
}

func (v *Vote) Status(env Env) string {
	if env.Now.Before(v.Deadline()) {
		return domain.SubWaiting
	}
	if v.RequireMajority || !v.AllowAbstain {
		if v.Yeas > v.Nays+v.Abstains {
			return domain.SubApproved
		}
		return domain.SubRejected
	}
	if v.Yeas > v.Nays && v.Yeas > v.Abstains {
		return domain.SubApproved
	}
	return domain.SubRejected
}

func (v *Vote) DescriptionForPassing() string {
	if v.RequireMajority {
		return "a majority of people must vote for this action within the voting period"
	}
	return "a plurality of people must vote for this action within the voting period"
}

func (v *Vote) DisplayFields() []Field {
	return []Field{
		{Name: "yeas", Value: v.Yeas},
		{Name: "nays", Value: v.Nays},
		{Name: "abstains", Value: v.Abstains},
		{Name: "deadline", Value: v.Deadline().Format(time.RFC3339)},
	}
}

func (v *Vote) HasVoted(actor int64) bool {
	for _, a := range v.Voted {
		if a == actor {
			return true
		}
	}
	return false
}

func (v *Vote) AddVote(actor int64, choice string, now time.Time) error {
	if now.After(v.Deadline()) {
		return domain.Validationf("the voting deadline has passed")
	}
	if v.HasVoted(actor) {
		return domain.Validationf("actor %d has already voted", actor)
	}
	switch choice {
	case VoteYea:
		v.Yeas++
	case VoteNay:
		v.Nays++
	case VoteAbstain:
		if !v.AllowAbstain {
			return domain.Validationf("abstaining is not allowed on this vote")
		}
		v.Abstains++
	default:
		return domain.Validationf("invalid vote %s", choice)
	}
	v.Voted = append(v.Voted, actor)
	return nil
}

func (v *Vote) CurrentResults() string {
	return fmt.Sprintf("%d yeas, %d nays, %d abstains", v.Yeas, v.Nays, v.Abstains)
}
