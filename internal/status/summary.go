// Package status computes and renders human-readable summaries of
// recipe sessions.
package status

import (
	"sort"
	"time"

	"github.com/robotdad/amplifier-collection-recipes/internal/session"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// SessionSummary contains computed information about a session for display.
type SessionSummary struct {
	SessionID   string        `json:"session_id"`
	Recipe      string        `json:"recipe"`
	Version     string        `json:"version,omitempty"`
	ProjectPath string        `json:"project_path"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	StepStats   StepStats     `json:"step_stats"`
	Approvals   []GateSummary `json:"approvals,omitempty"`
	Pending     *PendingGate  `json:"pending_approval,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// StepStats contains step count breakdown.
type StepStats struct {
	Total     int `json:"total"`
	Done      int `json:"done"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// GateSummary contains the decision recorded for one stage gate.
type GateSummary struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// PendingGate contains info about an approval gate awaiting a decision.
type PendingGate struct {
	Stage       string        `json:"stage"`
	Prompt      string        `json:"prompt,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	TimeoutAt   time.Time     `json:"timeout_at,omitempty"`
	Default     string        `json:"default,omitempty"`
	Waiting     time.Duration `json:"waiting"`
}

// NewSessionSummary creates a summary from session state. The recipe is
// optional; when present it supplies the total step count, otherwise the
// total reflects only the steps the session has seen.
func NewSessionSummary(st *session.State, rec *types.Recipe) *SessionSummary {
	summary := &SessionSummary{
		SessionID:   st.SessionID,
		Recipe:      st.RecipeName,
		Version:     st.RecipeVersion,
		ProjectPath: st.ProjectPath,
		Status:      st.Status,
		StartedAt:   st.StartedAt,
		UpdatedAt:   st.UpdatedAt,
		StepStats:   computeStepStats(st, rec),
		Error:       st.Error,
	}

	// Collect gate decisions, sorted for stable output.
	for stage, status := range st.StageApprovals {
		summary.Approvals = append(summary.Approvals, GateSummary{
			Stage:  stage,
			Status: status,
		})
	}
	sort.Slice(summary.Approvals, func(i, j int) bool {
		return summary.Approvals[i].Stage < summary.Approvals[j].Stage
	})

	if p := st.Pending; p != nil {
		summary.Pending = &PendingGate{
			Stage:       p.Stage,
			Prompt:      p.Prompt,
			RequestedAt: p.RequestedAt,
			TimeoutAt:   p.TimeoutAt,
			Default:     p.Default,
			Waiting:     time.Since(p.RequestedAt),
		}
	}

	return summary
}

// computeStepStats tallies up step progress against the recipe.
func computeStepStats(st *session.State, rec *types.Recipe) StepStats {
	stats := StepStats{
		Done:    len(st.CompletedSteps),
		Skipped: len(st.SkippedSteps),
	}

	if rec != nil {
		stats.Total = len(rec.AllSteps())
	} else {
		stats.Total = stats.Done + stats.Skipped
	}

	if rem := stats.Total - stats.Done - stats.Skipped; rem > 0 {
		stats.Remaining = rem
	}

	return stats
}
