package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/amplifier-collection-recipes/internal/session"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

const stagedYAML = `
name: deploy
version: 2.1.0
description: staged pipeline
stages:
  - name: build
    steps:
      - id: compile
        prompt: compile
      - id: test
        prompt: test
  - name: release
    approval:
      required: true
    steps:
      - id: ship
        prompt: ship
`

func TestNewSessionSummary(t *testing.T) {
	rec, err := types.Parse([]byte(stagedYAML))
	require.NoError(t, err)

	started := time.Now().Add(-5 * time.Minute)
	st := &session.State{
		SessionID:      "abc123-20260829-120000_deploy",
		RecipeName:     "deploy",
		RecipeVersion:  "2.1.0",
		ProjectPath:    "/work/proj",
		Status:         session.StatusPaused,
		StartedAt:      started,
		UpdatedAt:      time.Now(),
		CompletedSteps: []string{"compile"},
		SkippedSteps:   []string{"test"},
		StageApprovals: map[string]string{
			"release": session.ApprovalPending,
			"build":   session.ApprovalApproved,
		},
		Pending: &session.PendingApproval{
			Stage:       "release",
			Prompt:      "Ship it?",
			RequestedAt: time.Now().Add(-time.Minute),
		},
	}

	summary := NewSessionSummary(st, rec)

	assert.Equal(t, "deploy", summary.Recipe)
	assert.Equal(t, "2.1.0", summary.Version)
	assert.Equal(t, session.StatusPaused, summary.Status)
	assert.Equal(t, StepStats{Total: 3, Done: 1, Skipped: 1, Remaining: 1}, summary.StepStats)

	// Gate decisions come back sorted by stage name.
	require.Len(t, summary.Approvals, 2)
	assert.Equal(t, GateSummary{Stage: "build", Status: session.ApprovalApproved}, summary.Approvals[0])
	assert.Equal(t, GateSummary{Stage: "release", Status: session.ApprovalPending}, summary.Approvals[1])

	require.NotNil(t, summary.Pending)
	assert.Equal(t, "release", summary.Pending.Stage)
	assert.Equal(t, "Ship it?", summary.Pending.Prompt)
	assert.Greater(t, summary.Pending.Waiting, time.Duration(0))
}

func TestNewSessionSummaryWithoutRecipe(t *testing.T) {
	st := &session.State{
		SessionID:      "abc",
		RecipeName:     "gone",
		Status:         session.StatusCompleted,
		CompletedSteps: []string{"a", "b"},
	}

	summary := NewSessionSummary(st, nil)

	// Total falls back to the steps the session has seen.
	assert.Equal(t, StepStats{Total: 2, Done: 2}, summary.StepStats)
	assert.Empty(t, summary.Approvals)
	assert.Nil(t, summary.Pending)
}

func TestFormatDetailedSession(t *testing.T) {
	rec, err := types.Parse([]byte(stagedYAML))
	require.NoError(t, err)

	st := &session.State{
		SessionID:      "abc123-20260829-120000_deploy",
		RecipeName:     "deploy",
		RecipeVersion:  "2.1.0",
		ProjectPath:    "/work/proj",
		Status:         session.StatusPaused,
		StartedAt:      time.Now().Add(-90 * time.Second),
		UpdatedAt:      time.Now(),
		CompletedSteps: []string{"compile", "test"},
		StageApprovals: map[string]string{"release": session.ApprovalPending},
		Pending: &session.PendingApproval{
			Stage:       "release",
			Prompt:      "Ship it?",
			RequestedAt: time.Now().Add(-time.Minute),
		},
	}

	out := FormatDetailedSession(NewSessionSummary(st, rec), FormatOptions{NoColor: true})

	assert.Contains(t, out, "Session:  abc123-20260829-120000_deploy")
	assert.Contains(t, out, "Recipe:   deploy v2.1.0")
	assert.Contains(t, out, "Status:   ◐ paused")
	assert.Contains(t, out, "66% (2/3 steps)")
	assert.Contains(t, out, "Approvals:")
	assert.Contains(t, out, "● release: pending")
	assert.Contains(t, out, "Awaiting approval: release")
	assert.Contains(t, out, "Ship it?")
	assert.NotContains(t, out, "\033[")
}

func TestFormatDetailedSessionFailed(t *testing.T) {
	st := &session.State{
		SessionID:  "abc",
		RecipeName: "deploy",
		Status:     session.StatusFailed,
		StartedAt:  time.Now().Add(-time.Minute),
		UpdatedAt:  time.Now(),
		Error:      "step compile: agent exited",
	}

	out := FormatDetailedSession(NewSessionSummary(st, nil), FormatOptions{NoColor: true})

	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "Finished:")
	assert.Contains(t, out, "Error: step compile: agent exited")
}

func TestFormatSessionList(t *testing.T) {
	older := &session.State{
		SessionID:  "old",
		RecipeName: "one",
		Status:     session.StatusCompleted,
		StartedAt:  time.Now().Add(-time.Hour),
		UpdatedAt:  time.Now().Add(-50 * time.Minute),
	}
	newer := &session.State{
		SessionID:  "new",
		RecipeName: "two",
		Status:     session.StatusRunning,
		StartedAt:  time.Now().Add(-time.Minute),
		UpdatedAt:  time.Now(),
	}

	out := FormatSessionList([]*SessionSummary{
		NewSessionSummary(older, nil),
		NewSessionSummary(newer, nil),
	}, FormatOptions{NoColor: true})

	assert.Contains(t, out, "Found 2 session(s)")
	// Newest first.
	assert.Less(t, strings.Index(out, "new"), strings.Index(out, "old"))
}
