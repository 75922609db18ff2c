// Package session persists recipe execution state so runs can be
// checkpointed, inspected, and resumed.
package session

import (
	"time"
)

// Session lifecycle statuses.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Approval statuses for a stage gate.
const (
	ApprovalPending     = "pending"
	ApprovalApproved    = "approved"
	ApprovalDenied      = "denied"
	ApprovalNotRequired = "not_required"
	ApprovalTimeout     = "timeout"
)

// PendingApproval describes a stage gate awaiting a decision.
type PendingApproval struct {
	Stage       string    `json:"stage"`
	Prompt      string    `json:"prompt,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	// TimeoutAt is when the configured default disposition applies.
	// Zero means the gate waits indefinitely.
	TimeoutAt time.Time `json:"timeout_at,omitempty"`
	// Default is the disposition applied at timeout: "approve" or "deny".
	Default string `json:"default,omitempty"`
}

// ApprovalRecord is one entry in the approval audit trail.
type ApprovalRecord struct {
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
	DecidedBy string    `json:"decided_by,omitempty"` // "user" or "timeout"
	Reason    string    `json:"reason,omitempty"`
}

// State is the durable snapshot of one recipe run. It is written after
// every step so a crash loses at most the step in flight.
type State struct {
	SessionID     string `json:"session_id"`
	RecipeName    string `json:"recipe_name"`
	RecipeVersion string `json:"recipe_version,omitempty"`
	RecipePath    string `json:"recipe_path"`
	ProjectPath   string `json:"project_path"`

	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Cursors into the recipe. StageIndex is -1 for flat recipes.
	StageIndex int `json:"stage_index"`
	StepIndex  int `json:"step_index"`

	// Context is the flattened variable snapshot at the last checkpoint.
	Context map[string]any `json:"context"`

	CompletedSteps  []string `json:"completed_steps"`
	SkippedSteps    []string `json:"skipped_steps,omitempty"`
	CompletedStages []string `json:"completed_stages,omitempty"`

	// StageApprovals maps stage name to its current approval status.
	StageApprovals  map[string]string `json:"stage_approvals,omitempty"`
	ApprovalHistory []ApprovalRecord  `json:"approval_history,omitempty"`
	Pending         *PendingApproval  `json:"pending_approval,omitempty"`

	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty"`
}

// StepCompleted reports whether the step already ran in this session.
func (s *State) StepCompleted(stepID string) bool {
	for _, id := range s.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// StageCompleted reports whether the stage already ran in this session.
func (s *State) StageCompleted(name string) bool {
	for _, n := range s.CompletedStages {
		if n == name {
			return true
		}
	}
	return false
}

// MarkStep records a step result and advances the step cursor.
func (s *State) MarkStep(stepID string, skipped bool) {
	if skipped {
		s.SkippedSteps = append(s.SkippedSteps, stepID)
	} else {
		s.CompletedSteps = append(s.CompletedSteps, stepID)
	}
	s.StepIndex++
}

// MarkStage records a completed stage and resets the step cursor.
func (s *State) MarkStage(name string) {
	s.CompletedStages = append(s.CompletedStages, name)
	s.StageIndex++
	s.StepIndex = 0
}

// ApprovalStatus returns the stage's approval status, defaulting to
// not_required when the stage has no recorded decision.
func (s *State) ApprovalStatus(stage string) string {
	if st, ok := s.StageApprovals[stage]; ok {
		return st
	}
	return ApprovalNotRequired
}

// SetApproval records a decision in the status map and audit trail.
func (s *State) SetApproval(stage, status, decidedBy, reason string) {
	if s.StageApprovals == nil {
		s.StageApprovals = make(map[string]string)
	}
	s.StageApprovals[stage] = status
	s.ApprovalHistory = append(s.ApprovalHistory, ApprovalRecord{
		Stage:     stage,
		Status:    status,
		DecidedAt: time.Now().UTC(),
		DecidedBy: decidedBy,
		Reason:    reason,
	})
}
