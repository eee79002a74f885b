package condition

import "agora/internal/domain"

// Approval waits for a single approve or reject. The approved flag is
// tri-state: nil means waiting.
type Approval struct {
	Approved            *bool `json:"approved,omitempty"`
	SelfApprovalAllowed bool  `json:"self_approval_allowed,omitempty"`
	DecidedBy           int64 `json:"decided_by,omitempty"`
}

func (a *Approval) Type() string { return TypeApproval }

func (a *Approval) Status(Env) string {
	switch {
	case a.Approved == nil:
		return domain.SubWaiting
	case *a.Approved:
		return domain.SubApproved
	default:
		return domain.SubRejected
	}
}

func (a *Approval) DescriptionForPassing() string {
	return "one person needs to approve this action"
}

func (a *Approval) DisplayFields() []Field {
	fields := []Field{{Name: "self_approval_allowed", Value: a.SelfApprovalAllowed}}
	if a.Approved != nil {
		fields = append(fields, Field{Name: "approved", Value: *a.Approved}, Field{Name: "decided_by", Value: a.DecidedBy})
	}
	return fields
}

func (a *Approval) Approve(approver, actionActor int64) error {
	return a.decide(approver, actionActor, true)
}

func (a *Approval) Reject(approver, actionActor int64) error {
	return a.decide(approver, actionActor, false)
}

func (a *Approval) decide(approver, actionActor int64, approved bool) error {
	if approver == actionActor && !a.SelfApprovalAllowed {
		return domain.Validationf("actor %d cannot approve or reject their own action", approver)
	}
	if a.Approved != nil {
		return domain.Validationf("this action has already been decided")
	}
	a.Approved = &approved
	a.DecidedBy = approver
	return nil
}
