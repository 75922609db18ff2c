package session

import (
	"time"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

// RequestApproval pauses the session on a stage gate and persists the
// pending block. timeout of zero means wait indefinitely.
func (m *Manager) RequestApproval(st *State, stage, prompt string, timeout time.Duration, defaultDisposition string) error {
	now := time.Now().UTC()
	pending := &PendingApproval{
		Stage:       stage,
		Prompt:      prompt,
		RequestedAt: now,
		Default:     defaultDisposition,
	}
	if timeout > 0 {
		pending.TimeoutAt = now.Add(timeout)
	}

	st.Status = StatusPaused
	st.Pending = pending
	st.SetApproval(stage, ApprovalPending, "", "")
	return m.Save(st)
}

// Approve records a user approval and clears the pending gate. The
// session stays paused; the caller resumes execution separately.
func (m *Manager) Approve(st *State, reason string) error {
	if st.Pending == nil {
		return recerr.New(recerr.CodeApprovalPending, "session has no pending approval").
			WithDetail("session_id", st.SessionID)
	}
	stage := st.Pending.Stage
	st.SetApproval(stage, ApprovalApproved, "user", reason)
	st.Pending = nil
	if err := m.Save(st); err != nil {
		return err
	}
	_ = m.AppendEvent(st, Event{Kind: EventApprovalApproved, Stage: stage, Message: reason})
	return nil
}

// Deny records a denial and marks the session failed. Denial is
// terminal: the stage never runs and the recipe does not continue.
func (m *Manager) Deny(st *State, reason string) error {
	if st.Pending == nil {
		return recerr.New(recerr.CodeApprovalPending, "session has no pending approval").
			WithDetail("session_id", st.SessionID)
	}
	stage := st.Pending.Stage
	st.SetApproval(stage, ApprovalDenied, "user", reason)
	st.Pending = nil
	st.Status = StatusFailed
	st.Error = recerr.ApprovalDenied(stage, reason).Error()
	if err := m.Save(st); err != nil {
		return err
	}
	_ = m.AppendEvent(st, Event{Kind: EventApprovalDenied, Stage: stage, Message: reason})
	return nil
}

// ApplyApprovalTimeout checks whether the pending gate's deadline has
// passed and, if so, applies the configured default disposition. It
// returns the resulting approval status ("" when nothing changed).
func (m *Manager) ApplyApprovalTimeout(st *State, now time.Time) (string, error) {
	p := st.Pending
	if p == nil || p.TimeoutAt.IsZero() || now.Before(p.TimeoutAt) {
		return "", nil
	}

	stage := p.Stage
	if p.Default == "approve" {
		st.SetApproval(stage, ApprovalApproved, "timeout", "default disposition at timeout")
		st.Pending = nil
		if err := m.Save(st); err != nil {
			return "", err
		}
		_ = m.AppendEvent(st, Event{Kind: EventApprovalApproved, Stage: stage, Message: "timeout default"})
		return ApprovalApproved, nil
	}

	st.SetApproval(stage, ApprovalTimeout, "timeout", "default disposition at timeout")
	st.Pending = nil
	st.Status = StatusFailed
	st.Error = recerr.ApprovalDenied(stage, "timed out").Error()
	if err := m.Save(st); err != nil {
		return "", err
	}
	_ = m.AppendEvent(st, Event{Kind: EventApprovalDenied, Stage: stage, Message: "timeout default"})
	return ApprovalTimeout, nil
}
