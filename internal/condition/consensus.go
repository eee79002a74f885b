package condition

import (
	"strconv"
	"time"

	"agora/internal/domain"
)

// DefaultConsensusMinimumHours applies when a consensus carries no explicit
// minimum duration.
const DefaultConsensusMinimumHours = 48

// Consensus responses.
const (
	ResponseSupport      = "support"
	ResponseReservations = "support with reservations"
	ResponseStandAside   = "stand aside"
	ResponseBlock        = "block"
	ResponseNone         = "no response"
)

// Consensus collects responses from participants and resolves explicitly.
// It waits until someone resolves it, which is only allowed after the
// minimum duration has passed.
type Consensus struct {
	Responses            map[string]string `json:"responses,omitempty"`
	Participants         []int64           `json:"participants,omitempty"`
	IsStrict             bool              `json:"is_strict,omitempty"`
	MinimumDurationHours float64           `json:"minimum_duration_hours,omitempty"`
	Resolved             bool              `json:"resolved,omitempty"`
	StartedAt            string            `json:"started_at,omitempty"`
}

func (c *Consensus) Type() string { return TypeConsensus }

func (c *Consensus) Status(Env) string {
	if !c.Resolved {
		return domain.SubWaiting
	}
	if c.hasBlocks() || !c.hasSupport() {
		return domain.SubRejected
	}
	if c.IsStrict && !c.fullParticipation() {
		return domain.SubRejected
	}
	return domain.SubApproved
}

func (c *Consensus) DescriptionForPassing() string {
	if c.IsStrict {
		return "all participants must actively support this action with no blocks"
	}
	return "the group must reach consensus with no blocks and at least one response of support"
}

func (c *Consensus) DisplayFields() []Field {
	return []Field{
		{Name: "responses", Value: c.Responses},
		{Name: "is_strict", Value: c.IsStrict},
		{Name: "resolved", Value: c.Resolved},
	}
}

func (c *Consensus) MinimumDurationEnd() time.Time {
	start, err := time.Parse(time.RFC3339, c.StartedAt)
	if err != nil {
		return time.Time{}
	}
	hours := c.MinimumDurationHours
	if hours == 0 {
		hours = DefaultConsensusMinimumHours
	}
	return start.Add(time.Duration(hours * float64(time.Hour)))
}

// Respond records or updates an actor's response. Non-participants may join
// an open consensus but not a strict one.
func (c *Consensus) Respond(actor int64, response string) error {
	if c.Resolved {
		return domain.Validationf("this consensus has already been resolved")
	}
	switch response {
	case ResponseSupport, ResponseReservations, ResponseStandAside, ResponseBlock, ResponseNone:
	default:
		return domain.Validationf("invalid consensus response %s", response)
	}
	if !c.isParticipant(actor) {
		if c.IsStrict {
			return domain.Validationf("actor %d is not a participant in this consensus", actor)
		}
		c.Participants = append(c.Participants, actor)
	}
	if c.Responses == nil {
		c.Responses = map[string]string{}
	}
	c.Responses[actorKey(actor)] = response
	return nil
}

func (c *Consensus) Resolve(now time.Time) error {
	if c.Resolved {
		return domain.Validationf("this consensus has already been resolved")
	}
	if now.Before(c.MinimumDurationEnd()) {
		return domain.Validationf("the minimum duration of the consensus has not passed")
	}
	c.Resolved = true
	return nil
}

func (c *Consensus) isParticipant(actor int64) bool {
	for _, p := range c.Participants {
		if p == actor {
			return true
		}
	}
	return false
}

func (c *Consensus) hasBlocks() bool {
	for _, r := range c.Responses {
		if r == ResponseBlock {
			return true
		}
	}
	return false
}

func (c *Consensus) hasSupport() bool {
	for _, r := range c.Responses {
		if r == ResponseSupport || r == ResponseReservations {
			return true
		}
	}
	return false
}

func (c *Consensus) fullParticipation() bool {
	for _, p := range c.Participants {
		r, ok := c.Responses[actorKey(p)]
		if !ok || r == ResponseNone {
			return false
		}
	}
	return len(c.Participants) > 0
}

func actorKey(actor int64) string {
	return strconv.FormatInt(actor, 10)
}
