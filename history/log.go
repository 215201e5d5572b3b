package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Log is the durable event log of one workflow run. Events are stored one
// JSON object per line, newest line first, so "most recent N events" is a
// cheap front-read. There is no authoritative in-memory cache: LoadAll
// re-reads the file every time, which honors external hand-edits.
//
// Log is safe for concurrent use; appends are serialized.
type Log struct {
	mu     sync.Mutex
	path   string
	logger logging.Logger

	// lastWrite is consulted by the watcher to ignore self-triggered file
	// change notifications.
	lastWrite time.Time
}

// Options configures a Log.
type Options struct {
	Logger logging.Logger
}

// Open prepares a Log backed by the file at path, creating parent
// directories. The file itself is created lazily on first append.
func Open(path string, optFns ...func(o *Options)) (*Log, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Log{path: path, logger: opts.Logger}, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append stamps the event with the current time if unset, prepends its JSON
// form to the log file and returns once the write completed.
func (l *Log) Append(ev core.HistoryEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = core.NewID()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize history event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := os.ReadFile(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read history file: %w", err)
	}

	buf := make([]byte, 0, len(line)+1+len(prev))
	buf = append(buf, line...)
	buf = append(buf, '\n')
	buf = append(buf, prev...)

	if err := os.WriteFile(l.path, buf, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	l.lastWrite = time.Now()
	return nil
}

// LoadAll parses the file into an ordered list, file order preserved
// (newest first). Lines that fail to parse are skipped, tolerating partial
// writes and hand-edits.
func (l *Log) LoadAll() ([]core.HistoryEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var events []core.HistoryEvent
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev core.HistoryEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			l.logger.Warn("skipping unparseable history line", "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan history file: %w", err)
	}
	return events, nil
}

// Recent returns up to n newest events.
func (l *Log) Recent(n int) ([]core.HistoryEvent, error) {
	events, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// Truncate removes the log file entirely.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate history file: %w", err)
	}
	l.lastWrite = time.Now()
	return nil
}

func (l *Log) lastWriteTime() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastWrite
}
