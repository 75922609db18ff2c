package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const eventsFileName = "events.jsonl"

// Event kinds recorded in the session event log.
const (
	EventRunStarted       = "run_started"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
	EventRunResumed       = "run_resumed"
	EventStepStarted      = "step_started"
	EventStepCompleted    = "step_completed"
	EventStepSkipped      = "step_skipped"
	EventStepFailed       = "step_failed"
	EventStageStarted     = "stage_started"
	EventStageCompleted   = "stage_completed"
	EventApprovalPending  = "approval_pending"
	EventApprovalApproved = "approval_approved"
	EventApprovalDenied   = "approval_denied"
)

// Event is one line in the append-only events.jsonl log.
type Event struct {
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Step    string         `json:"step,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// AppendEvent writes one event to the session's log. Logging failures
// are returned but callers typically treat them as non-fatal: the event
// log is diagnostic, state.json is the source of truth.
func (m *Manager) AppendEvent(st *State, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	dir := m.sessionDir(st.ProjectPath, st.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// ReadEvents returns the full event log for a session.
func (m *Manager) ReadEvents(st *State) ([]Event, error) {
	path := filepath.Join(m.sessionDir(st.ProjectPath, st.SessionID), eventsFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // tolerate torn writes at the tail
		}
		events = append(events, ev)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
