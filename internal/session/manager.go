package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

const stateFileName = "state.json"

// Manager stores session state under baseDir, one directory per
// project, one subdirectory per session:
//
//	<baseDir>/<project-slug>/<session-id>/state.json
//	<baseDir>/<project-slug>/<session-id>/events.jsonl
type Manager struct {
	baseDir       string
	retentionDays int
}

// NewManager creates a session manager rooted at baseDir.
// retentionDays bounds CleanupOld; zero disables cleanup.
func NewManager(baseDir string, retentionDays int) *Manager {
	return &Manager{baseDir: baseDir, retentionDays: retentionDays}
}

// NewSessionID generates a session identifier that sorts readably:
// 16 hex chars of randomness, a timestamp, and the recipe name.
func NewSessionID(recipeName string) string {
	return fmt.Sprintf("%s-%s_%s",
		strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
		time.Now().Format("20060102-150405"),
		slug(recipeName))
}

// Create initializes and persists state for a new run.
func (m *Manager) Create(recipeName, recipeVersion, recipePath, projectPath string) (*State, error) {
	now := time.Now().UTC()
	st := &State{
		SessionID:     NewSessionID(recipeName),
		RecipeName:    recipeName,
		RecipeVersion: recipeVersion,
		RecipePath:    recipePath,
		ProjectPath:   projectPath,
		Status:        StatusRunning,
		StartedAt:     now,
		UpdatedAt:     now,
		StageIndex:    -1,
		Context:       make(map[string]any),
	}
	if err := m.Save(st); err != nil {
		return nil, err
	}

	// Keep a copy of the recipe source alongside the state so the run
	// stays inspectable after the original file moves or changes.
	if data, err := os.ReadFile(recipePath); err == nil {
		dir := m.sessionDir(projectPath, st.SessionID)
		_ = os.WriteFile(filepath.Join(dir, "recipe.yaml"), data, 0644)
	}
	return st, nil
}

// Save writes state atomically: marshal to a temp file in the session
// directory, then rename over state.json.
func (m *Manager) Save(st *State) error {
	st.UpdatedAt = time.Now().UTC()

	dir := m.sessionDir(st.ProjectPath, st.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return recerr.SessionIO(st.SessionID, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return recerr.SessionIO(st.SessionID, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return recerr.SessionIO(st.SessionID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return recerr.SessionIO(st.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return recerr.SessionIO(st.SessionID, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, stateFileName)); err != nil {
		os.Remove(tmpName)
		return recerr.SessionIO(st.SessionID, err)
	}
	return nil
}

// Load reads state for a session, searching all project directories
// when the session id alone is given.
func (m *Manager) Load(projectPath, sessionID string) (*State, error) {
	path := filepath.Join(m.sessionDir(projectPath, sessionID), stateFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, recerr.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, recerr.SessionIO(sessionID, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, recerr.SessionIO(sessionID, err)
	}
	return &st, nil
}

// Find locates a session by id across all projects.
func (m *Manager) Find(sessionID string) (*State, error) {
	projects, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, recerr.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, recerr.SessionIO(sessionID, err)
	}

	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		path := filepath.Join(m.baseDir, p.Name(), sessionID, stateFileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, recerr.SessionIO(sessionID, err)
		}
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, recerr.SessionIO(sessionID, err)
		}
		return &st, nil
	}
	return nil, recerr.SessionNotFound(sessionID)
}

// Exists reports whether a session directory is present for the project.
func (m *Manager) Exists(projectPath, sessionID string) bool {
	_, err := os.Stat(filepath.Join(m.sessionDir(projectPath, sessionID), stateFileName))
	return err == nil
}

// List returns all sessions for a project, newest first.
func (m *Manager) List(projectPath string) ([]*State, error) {
	dir := filepath.Join(m.baseDir, slug(projectPath))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, recerr.SessionIO("", err)
	}

	var sessions []*State
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := m.Load(projectPath, e.Name())
		if err != nil {
			continue // skip unreadable sessions
		}
		sessions = append(sessions, st)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// ListPendingApprovals returns sessions across all projects that are
// paused on an approval gate.
func (m *Manager) ListPendingApprovals() ([]*State, error) {
	projects, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, recerr.SessionIO("", err)
	}

	var pending []*State
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		sessions, err := os.ReadDir(filepath.Join(m.baseDir, p.Name()))
		if err != nil {
			continue
		}
		for _, e := range sessions {
			if !e.IsDir() {
				continue
			}
			st, err := m.Find(e.Name())
			if err != nil {
				continue
			}
			if st.Status == StatusPaused && st.Pending != nil {
				pending = append(pending, st)
			}
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Pending.RequestedAt.Before(pending[j].Pending.RequestedAt)
	})
	return pending, nil
}

// CleanupOld removes completed and failed sessions older than the
// retention window. Paused sessions are kept regardless of age.
func (m *Manager) CleanupOld() (int, error) {
	if m.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -m.retentionDays)

	projects, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, recerr.SessionIO("", err)
	}

	removed := 0
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		sessions, err := os.ReadDir(filepath.Join(m.baseDir, p.Name()))
		if err != nil {
			continue
		}
		for _, e := range sessions {
			if !e.IsDir() {
				continue
			}
			st, err := m.Find(e.Name())
			if err != nil {
				continue
			}
			if st.Status == StatusPaused || st.Status == StatusRunning {
				continue
			}
			if st.UpdatedAt.After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(m.baseDir, p.Name(), e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (m *Manager) sessionDir(projectPath, sessionID string) string {
	return filepath.Join(m.baseDir, slug(projectPath), sessionID)
}

// slug flattens a path or name into a single directory-safe component.
func slug(s string) string {
	s = strings.Trim(s, "/")
	if s == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
