package domain

import (
	"fmt"
	"time"
)

// DefaultLogCap bounds the resolution log when no configured cap applies.
const DefaultLogCap = 40

// LogEntry is one structured resolution log record.
type LogEntry struct {
	Pipeline string `json:"pipeline"`
	Message  string `json:"message"`
	TS       string `json:"ts"`
}

// Resolution tracks each pipeline's sub-status for an action. The overall
// status is always derived from the sub-statuses, never set directly.
type Resolution struct {
	Foundational      string          `json:"foundational"`
	Governing         string          `json:"governing"`
	Specific          string          `json:"specific"`
	ApprovedThrough   string          `json:"approved_through,omitempty"`
	ApprovedRole      string          `json:"approved_role,omitempty"`
	ApprovedCondition string          `json:"approved_condition,omitempty"`
	Conditions        map[string]bool `json:"conditions,omitempty"`
	Log               []LogEntry      `json:"log,omitempty"`
}

func NewResolution() Resolution {
	return Resolution{
		Foundational: SubNotTested,
		Governing:    SubNotTested,
		Specific:     SubNotTested,
	}
}

// Reset clears sub-statuses and approval fields so a re-run starts clean.
// The log survives across runs.
func (r *Resolution) Reset() {
	r.Foundational = SubNotTested
	r.Governing = SubNotTested
	r.Specific = SubNotTested
	r.ApprovedThrough = ""
	r.ApprovedRole = ""
	r.ApprovedCondition = ""
	r.Conditions = nil
}

func (r *Resolution) SetStatus(pipeline, status string) {
	switch pipeline {
	case PipeFoundational:
		r.Foundational = status
	case PipeGoverning:
		r.Governing = status
	case PipeSpecific:
		r.Specific = status
	default:
		panic(fmt.Sprintf("unknown pipeline %q", pipeline))
	}
}

func (r *Resolution) PipelineStatus(pipeline string) string {
	switch pipeline {
	case PipeFoundational:
		return r.Foundational
	case PipeGoverning:
		return r.Governing
	case PipeSpecific:
		return r.Specific
	default:
		panic(fmt.Sprintf("unknown pipeline %q", pipeline))
	}
}

// Approve marks a pipeline approved and records how the approval happened.
func (r *Resolution) Approve(pipeline, role, conditionSource string) {
	r.SetStatus(pipeline, SubApproved)
	r.ApprovedThrough = pipeline
	r.ApprovedRole = role
	r.ApprovedCondition = conditionSource
}

// MarkCondition records that a condition source was consulted; created is
// false when the instance does not exist yet.
func (r *Resolution) MarkCondition(sourceID string, created bool) {
	if r.Conditions == nil {
		r.Conditions = map[string]bool{}
	}
	r.Conditions[sourceID] = created
}

// UncreatedConditions lists condition sources consulted but not yet
// materialized.
func (r *Resolution) UncreatedConditions() []string {
	var out []string
	for src, created := range r.Conditions {
		if !created {
			out = append(out, src)
		}
	}
	return out
}

// OverallStatus derives the action-level outcome: approved if any pipeline
// approved, else waiting, else rejected, else created.
func (r Resolution) OverallStatus() string {
	subs := []string{r.Foundational, r.Governing, r.Specific}
	for _, s := range subs {
		if s == SubApproved {
			return StatusApproved
		}
	}
	for _, s := range subs {
		if s == SubWaiting {
			return StatusWaiting
		}
	}
	for _, s := range subs {
		if s == SubRejected {
			return StatusRejected
		}
	}
	return StatusCreated
}

func (r *Resolution) AddLog(pipeline, msg string, ts time.Time) {
	r.Log = append(r.Log, LogEntry{
		Pipeline: pipeline,
		Message:  msg,
		TS:       ts.UTC().Format(time.RFC3339),
	})
	r.TrimLog(DefaultLogCap)
}

// TrimLog keeps the most recent max entries.
func (r *Resolution) TrimLog(max int) {
	if max > 0 && len(r.Log) > max {
		r.Log = r.Log[len(r.Log)-max:]
	}
}

// LastLog returns the newest log message, for display.
func (r Resolution) LastLog() string {
	if len(r.Log) == 0 {
		return ""
	}
	return r.Log[len(r.Log)-1].Message
}
