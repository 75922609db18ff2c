package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), 7)
}

func TestCreateAndLoad(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Create("review", "1.0.0", "/tmp/review.yaml", "/work/proj")
	require.NoError(t, err)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, StatusRunning, st.Status)
	assert.Equal(t, -1, st.StageIndex)

	loaded, err := m.Load("/work/proj", st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, st.SessionID, loaded.SessionID)
	assert.Equal(t, "review", loaded.RecipeName)
	assert.Equal(t, "1.0.0", loaded.RecipeVersion)
}

func TestCreateCopiesRecipeSource(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 7)

	recipePath := filepath.Join(t.TempDir(), "review.yaml")
	require.NoError(t, os.WriteFile(recipePath, []byte("name: review\n"), 0644))

	st, err := m.Create("review", "1.0.0", recipePath, "/work/proj")
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(dir, "work-proj", st.SessionID, "recipe.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: review\n", string(copied))
}

func TestSessionIDShape(t *testing.T) {
	id := NewSessionID("my-recipe")
	assert.Regexp(t, `^[0-9a-f]{16}-\d{8}-\d{6}_my-recipe$`, id)
}

func TestLoadMissingSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Load("/work/proj", "nope")
	require.Error(t, err)
	assert.Equal(t, recerr.CodeSessionNotFound, recerr.Code(err))
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 7)

	st, err := m.Create("r", "1.0.0", "/tmp/r.yaml", "/p")
	require.NoError(t, err)

	st.Context = map[string]any{"result": "done"}
	require.NoError(t, m.Save(st))

	// No temp files left behind.
	sessionDir := filepath.Join(dir, "p", st.SessionID)
	entries, err := os.ReadDir(sessionDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".state-")
	}

	loaded, err := m.Load("/p", st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "done", loaded.Context["result"])
}

func TestFindAcrossProjects(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Create("r", "1.0.0", "/tmp/r.yaml", "/deep/project/one")
	require.NoError(t, err)

	found, err := m.Find(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, st.SessionID, found.SessionID)
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Create("alpha", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	first.StartedAt = time.Now().Add(-time.Hour)
	require.NoError(t, m.Save(first))

	second, err := m.Create("beta", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)

	list, err := m.List("/p")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.SessionID, list[0].SessionID)
	assert.Equal(t, first.SessionID, list[1].SessionID)
}

func TestMarkStepAndStage(t *testing.T) {
	st := &State{StageIndex: 0}

	st.MarkStep("a", false)
	st.MarkStep("b", true)
	assert.Equal(t, []string{"a"}, st.CompletedSteps)
	assert.Equal(t, []string{"b"}, st.SkippedSteps)
	assert.Equal(t, 2, st.StepIndex)
	assert.True(t, st.StepCompleted("a"))
	assert.False(t, st.StepCompleted("b"))

	st.MarkStage("build")
	assert.Equal(t, 1, st.StageIndex)
	assert.Equal(t, 0, st.StepIndex)
	assert.True(t, st.StageCompleted("build"))
}

func TestApprovalFlow(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Create("deploy", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)

	require.NoError(t, m.RequestApproval(st, "release", "Ship it?", time.Hour, "deny"))
	assert.Equal(t, StatusPaused, st.Status)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "release", st.Pending.Stage)
	assert.Equal(t, ApprovalPending, st.ApprovalStatus("release"))

	pending, err := m.ListPendingApprovals()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, st.SessionID, pending[0].SessionID)

	require.NoError(t, m.Approve(st, "looks good"))
	assert.Nil(t, st.Pending)
	assert.Equal(t, ApprovalApproved, st.ApprovalStatus("release"))
	require.Len(t, st.ApprovalHistory, 2)
	assert.Equal(t, "user", st.ApprovalHistory[1].DecidedBy)
	assert.Equal(t, "looks good", st.ApprovalHistory[1].Reason)
}

func TestDenyIsTerminal(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Create("deploy", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	require.NoError(t, m.RequestApproval(st, "release", "Ship it?", 0, "deny"))

	require.NoError(t, m.Deny(st, "not today"))
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, ApprovalDenied, st.ApprovalStatus("release"))
	assert.Nil(t, st.Pending)
}

func TestApproveWithoutPending(t *testing.T) {
	m := newTestManager(t)
	st, err := m.Create("r", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)

	assert.Error(t, m.Approve(st, ""))
	assert.Error(t, m.Deny(st, ""))
}

func TestApprovalTimeoutDeny(t *testing.T) {
	m := newTestManager(t)
	st, err := m.Create("deploy", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	require.NoError(t, m.RequestApproval(st, "release", "?", time.Minute, "deny"))

	// Before the deadline nothing changes.
	status, err := m.ApplyApprovalTimeout(st, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.NotNil(t, st.Pending)

	status, err = m.ApplyApprovalTimeout(st, time.Now().UTC().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ApprovalTimeout, status)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Nil(t, st.Pending)
}

func TestApprovalTimeoutApprove(t *testing.T) {
	m := newTestManager(t)
	st, err := m.Create("deploy", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	require.NoError(t, m.RequestApproval(st, "release", "?", time.Minute, "approve"))

	status, err := m.ApplyApprovalTimeout(st, time.Now().UTC().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, status)
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, ApprovalApproved, st.ApprovalStatus("release"))
}

func TestNoTimeoutWaitsForever(t *testing.T) {
	m := newTestManager(t)
	st, err := m.Create("deploy", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	require.NoError(t, m.RequestApproval(st, "release", "?", 0, "deny"))

	status, err := m.ApplyApprovalTimeout(st, time.Now().UTC().Add(24*365*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.NotNil(t, st.Pending)
}

func TestCleanupOld(t *testing.T) {
	m := newTestManager(t)

	old, err := m.Create("old", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	old.Status = StatusCompleted
	require.NoError(t, m.Save(old))
	backdate(t, m, old, 10)

	recent, err := m.Create("recent", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	recent.Status = StatusCompleted
	require.NoError(t, m.Save(recent))

	paused, err := m.Create("paused", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)
	require.NoError(t, m.RequestApproval(paused, "gate", "?", 0, "deny"))
	backdate(t, m, paused, 10)

	removed, err := m.CleanupOld()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.Find(old.SessionID)
	assert.Error(t, err)
	_, err = m.Find(recent.SessionID)
	assert.NoError(t, err)
	_, err = m.Find(paused.SessionID)
	assert.NoError(t, err)
}

// backdate rewrites a session's updated_at directly; Save would stamp
// it back to now.
func backdate(t *testing.T, m *Manager, st *State, days int) {
	t.Helper()
	st.UpdatedAt = time.Now().UTC().AddDate(0, 0, -days)
	data, err := json.Marshal(st)
	require.NoError(t, err)
	path := filepath.Join(m.baseDir, slug(st.ProjectPath), st.SessionID, stateFileName)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestEventLog(t *testing.T) {
	m := newTestManager(t)
	st, err := m.Create("r", "1.0.0", "/r.yaml", "/p")
	require.NoError(t, err)

	require.NoError(t, m.AppendEvent(st, Event{Kind: EventRunStarted}))
	require.NoError(t, m.AppendEvent(st, Event{Kind: EventStepCompleted, Step: "a"}))
	require.NoError(t, m.AppendEvent(st, Event{Kind: EventRunCompleted}))

	events, err := m.ReadEvents(st)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventRunStarted, events[0].Kind)
	assert.Equal(t, "a", events[1].Step)
	assert.False(t, events[0].Time.IsZero())
}
