// Package state handles checker state persistence to disk.
// It remembers which status each target was last alerted for, so that the
// periodic checker only notifies when something changes.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// State holds persisted checker state
type State struct {
	LastRunAt   time.Time               `json:"last_run_at,omitempty"`
	LastUpdated time.Time               `json:"last_updated"`
	AgentName   string                  `json:"agent_name"`
	LastRunID   string                  `json:"last_run_id,omitempty"`
	Notified    map[string]Notification `json:"notified"`
}

// Notification records the last alert sent for a target
type Notification struct {
	NotifiedAt time.Time    `json:"notified_at"`
	Status     types.Status `json:"status"`
}

// Manager handles state persistence
type Manager struct {
	filePath string
	state    *State
	mu       sync.RWMutex
}

// stateFileName is the name of the state file stored alongside config
const stateFileName = ".certcheck-state.json"

func newState() *State {
	return &State{Notified: make(map[string]Notification)}
}

// NewManager creates a state manager storing its file in stateDir
func NewManager(stateDir string) *Manager {
	return &Manager{
		filePath: filepath.Join(stateDir, stateFileName),
		state:    newState(),
	}
}

// Load reads state from disk
// Returns nil if file doesn't exist (first run)
// Returns error if file exists but cannot be read/parsed
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// First run, no state file yet
			m.state = newState()
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	state := newState()
	if err := json.Unmarshal(data, state); err != nil {
		// State file corrupted, treat as first run
		m.state = newState()
		return fmt.Errorf("failed to parse state file (treating as first run): %w", err)
	}
	if state.Notified == nil {
		state.Notified = make(map[string]Notification)
	}

	m.state = state
	return nil
}

// Save writes state to disk with secure permissions (0600)
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write with secure permissions (owner read/write only)
	if err := os.WriteFile(m.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// SetAgentName sets the checker name (call Save() to persist)
func (m *Manager) SetAgentName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.AgentName = name
}

// GetAgentName returns the persisted checker name
func (m *Manager) GetAgentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AgentName
}

// RecordRun stores the identity of the latest completed run
func (m *Manager) RecordRun(runID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastRunID = runID
	m.state.LastRunAt = at.UTC()
}

// GetLastRun returns the latest recorded run
func (m *Manager) GetLastRun() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LastRunID, m.state.LastRunAt
}

// PendingAlerts returns the results from candidates whose status differs
// from the one last notified for the same target
func (m *Manager) PendingAlerts(candidates []types.ScanResult) []types.ScanResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []types.ScanResult
	for _, r := range candidates {
		if prev, ok := m.state.Notified[r.Target.Key()]; ok && prev.Status == r.Verdict.Status {
			continue
		}
		pending = append(pending, r)
	}
	return pending
}

// MarkNotified records that results were alerted at the given time
// (call Save() to persist)
func (m *Manager) MarkNotified(results []types.ScanResult, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range results {
		m.state.Notified[r.Target.Key()] = Notification{
			Status:     r.Verdict.Status,
			NotifiedAt: at.UTC(),
		}
	}
}

// Reconcile forgets targets that are no longer alertable or no longer in the
// report, so a later regression alerts again. It returns the number of
// entries removed.
func (m *Manager) Reconcile(report *types.Report, notifyOn []types.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]types.Status, len(report.Results))
	for i := range report.Results {
		current[report.Results[i].Target.Key()] = report.Results[i].Verdict.Status
	}

	removed := 0
	for key := range m.state.Notified {
		status, ok := current[key]
		if !ok || !slices.Contains(notifyOn, status) {
			delete(m.state.Notified, key)
			removed++
		}
	}
	return removed
}

// NotifiedStatus returns the last status alerted for a target key
func (m *Manager) NotifiedStatus(key string) (types.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.state.Notified[key]
	return n.Status, ok
}

// HasState returns true if there is persisted state (not first run)
func (m *Manager) HasState() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LastRunID != "" || len(m.state.Notified) > 0
}

// Reset clears all state
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = newState()

	// Remove state file if it exists
	if err := os.Remove(m.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}

	return nil
}

// FilePath returns the path to the state file
func (m *Manager) FilePath() string {
	return m.filePath
}
