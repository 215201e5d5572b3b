package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// FormatVersion identifies the persisted state document layout.
const FormatVersion = 1

// DefaultDebounce is the window within which successive writes are collapsed
// into one persist.
const DefaultDebounce = 50 * time.Millisecond

// snapshot is the on-disk document layout of state/current.json. The file is
// overwritten wholesale on every persist, never appended.
type snapshot struct {
	Format        int            `json:"format"`
	Status        core.Status    `json:"status"`
	Memory        map[string]any `json:"memory"`
	LastError     string         `json:"_error,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
}

// Options configures a Store.
type Options struct {
	// Debounce is the coalescing window for scheduled persists.
	Debounce time.Duration
	// Logger receives warnings from failed scheduled persists.
	Logger logging.Logger
}

// Store is a flat key/value map with transparent persistence. A write
// schedules a persist after a short debounce window; a second write within
// the window reschedules rather than issuing two writes. Keys prefixed with
// an underscore are written directly without scheduling persistence: they
// hold process-local bookkeeping, though they still appear in the next full
// persist since they live in the same map.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	data     map[string]any
	status   core.Status
	lastErr  string
	started  *time.Time
	debounce time.Duration
	logger   logging.Logger

	timer        *time.Timer
	persistCount int
}

// Load reads the state file at path (creating parent directories) and
// returns a Store backed by it. A missing file yields an empty IDLE store.
func Load(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Debounce: DefaultDebounce, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &Store{
		path:     path,
		data:     map[string]any{},
		status:   core.StatusIdle,
		debounce: opts.Debounce,
		logger:   opts.Logger,
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if snap.Memory != nil {
		s.data = snap.Memory
	}
	if snap.Status != "" {
		s.status = snap.Status
	}
	s.lastErr = snap.LastError
	s.started = snap.StartedAt

	return s, nil
}

// Get returns the value for key. Reads never block on persistence.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores key=value and schedules a debounced persist. Internal keys
// (underscore-prefixed) skip the schedule.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	if !strings.HasPrefix(key, "_") {
		s.scheduleLocked()
	}
}

// SetPath mutates a nested field, creating intermediate maps as needed.
// Nested mutations schedule persistence exactly like top-level ones.
func (s *Store) SetPath(value any, keys ...string) error {
	if len(keys) == 0 {
		return &core.ValidationError{Field: "keys", Reason: "at least one key is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.data
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k]
		if !ok {
			child := map[string]any{}
			m[k] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return &core.ValidationError{Field: strings.Join(keys, "."), Reason: fmt.Sprintf("%q is not an object", k)}
		}
		m = child
	}
	m[keys[len(keys)-1]] = value

	if !strings.HasPrefix(keys[0], "_") {
		s.scheduleLocked()
	}
	return nil
}

// Delete removes key and schedules a persist for non-internal keys.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	if !strings.HasPrefix(key, "_") {
		s.scheduleLocked()
	}
}

// Snapshot returns a shallow copy of the current map.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Status returns the persisted run status.
func (s *Store) Status() core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus updates the run status and schedules a persist.
func (s *Store) SetStatus(status core.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.scheduleLocked()
}

// LastError returns the persisted error text of the last failed run.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetLastError records the error text of a failed run.
func (s *Store) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
	s.scheduleLocked()
}

// StartedAt returns the persisted run start time, if any.
func (s *Store) StartedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// SetStartedAt records the run start time.
func (s *Store) SetStartedAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = &t
	s.scheduleLocked()
}

// Reset clears all workflow state but keeps the file in place.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.data = map[string]any{}
	s.status = core.StatusIdle
	s.lastErr = ""
	s.started = nil
	s.mu.Unlock()
	return s.Flush()
}

// Flush bypasses the debounce and persists immediately. A serialization
// failure is surfaced to the caller.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.persist()
}

// scheduleLocked arms (or re-arms) the debounced persist. Caller holds mu.
func (s *Store) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.persist(); err != nil {
			// Not retried; the next mutation schedules another attempt.
			s.logger.Warn("scheduled state persist failed", "error", err)
		}
	})
}

func (s *Store) persist() error {
	s.mu.Lock()
	s.timer = nil
	raw, err := s.marshalLocked()
	path := s.path
	s.mu.Unlock()
	if err != nil {
		return err
	}
	// Write-then-rename so a crash mid-write never corrupts the state file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	s.mu.Lock()
	s.persistCount++
	s.mu.Unlock()
	return nil
}

// marshalLocked serializes the current snapshot. Caller holds mu.
func (s *Store) marshalLocked() ([]byte, error) {
	snap := snapshot{
		Format:        FormatVersion,
		Status:        s.status,
		Memory:        s.data,
		LastError:     s.lastErr,
		StartedAt:     s.started,
		LastUpdatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize workflow state: %w", err)
	}
	return raw, nil
}
