package supervisor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventFleetStarted     = "fleet_started"
	EventCheckPassed      = "check_passed"
	EventCheckFailed      = "check_failed"
	EventFleetRunning     = "fleet_running"
	EventWorkerSpawned    = "worker_spawned"
	EventWorkerExited     = "worker_exited"
	EventWorkerCrashed    = "worker_crashed"
	EventWorkerTerminated = "worker_terminated"
	EventStopRequested    = "stop_requested"
	EventFleetCompleted   = "fleet_completed"
	EventFleetAborted     = "fleet_aborted"
)

type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Type    string          `json:"type"`
	Worker  string          `json:"worker,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WorkerPayload is the payload of every worker_* event.
type WorkerPayload struct {
	Role     string `json:"role"`
	ID       int    `json:"id"`
	Seed     int64  `json:"seed"`
	PID      int    `json:"pid,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
	LogPath  string `json:"log_path,omitempty"`
}

func NewEventID() string {
	return uuid.NewString()
}

func ValidateEvent(event Event) error {
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if strings.TrimSpace(event.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	if strings.TrimSpace(event.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if event.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

func AppendEventJSONL(path string, event Event) error {
	if err := ValidateEvent(event); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	events := []Event{}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse event line %d: %w", lineNo, err)
		}
		if err := ValidateEvent(event); err != nil {
			return nil, fmt.Errorf("validate event line %d: %w", lineNo, err)
		}
		events = append(events, event)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// eventLog serialises appends from the launch loop and the reaper
// goroutines. An empty path disables it.
type eventLog struct {
	path  string
	runID string
	now   func() time.Time

	mu  sync.Mutex
	seq int64
}

func (l *eventLog) emit(eventType, worker string, payload any) error {
	if l == nil || l.path == "" {
		return nil
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = data
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return AppendEventJSONL(l.path, Event{
		EventID: NewEventID(),
		RunID:   l.runID,
		Seq:     l.seq,
		TS:      l.now().UTC(),
		Type:    eventType,
		Worker:  worker,
		Payload: raw,
	})
}
