package supervisor

import (
	"encoding/json"
	"time"
)

type WorkerStatus struct {
	Name     string      `json:"name"`
	Role     string      `json:"role"`
	ID       int         `json:"id"`
	PID      int         `json:"pid,omitempty"`
	State    HandleState `json:"state"`
	ExitCode int         `json:"exit_code"`
	Crashed  bool        `json:"crashed,omitempty"`
	LogPath  string      `json:"log_path,omitempty"`
}

// Status is a fleet run reconstructed from its event log.
type Status struct {
	RunID    string         `json:"run_id"`
	State    FleetState     `json:"state"`
	Started  time.Time      `json:"started"`
	Updated  time.Time      `json:"updated"`
	Stopped  bool           `json:"stopped,omitempty"`
	Workers  []WorkerStatus `json:"workers"`
	Crashes  int            `json:"crashes"`
	LastType string         `json:"last_event"`
}

// Summarize replays events in order. Events from an earlier run in the same
// log are discarded when a new fleet_started is seen.
func Summarize(events []Event) Status {
	status := Status{State: FleetIdle}
	index := map[string]int{}
	for _, event := range events {
		if event.Type == EventFleetStarted {
			status = Status{RunID: event.RunID, State: FleetIdle, Started: event.TS}
			index = map[string]int{}
		}
		status.Updated = event.TS
		status.LastType = event.Type

		switch event.Type {
		case EventCheckPassed:
			status.State = FleetSpawning
		case EventCheckFailed:
			status.State = FleetAborted
		case EventFleetRunning:
			status.State = FleetRunning
		case EventStopRequested:
			status.Stopped = true
		case EventFleetCompleted:
			status.State = FleetCompleted
		case EventFleetAborted:
			status.State = FleetAborted
		case EventWorkerSpawned, EventWorkerExited, EventWorkerCrashed, EventWorkerTerminated:
			var payload WorkerPayload
			_ = json.Unmarshal(event.Payload, &payload)
			i, ok := index[event.Worker]
			if !ok {
				i = len(status.Workers)
				index[event.Worker] = i
				status.Workers = append(status.Workers, WorkerStatus{Name: event.Worker})
			}
			w := &status.Workers[i]
			w.Role = payload.Role
			w.ID = payload.ID
			if payload.PID > 0 {
				w.PID = payload.PID
			}
			if payload.LogPath != "" {
				w.LogPath = payload.LogPath
			}
			if payload.ExitCode != nil {
				w.ExitCode = *payload.ExitCode
			}
			switch event.Type {
			case EventWorkerSpawned:
				w.State = HandleRunning
				switch {
				case status.State.Terminal():
				case payload.Role == "check":
					status.State = FleetCheckRunning
				default:
					status.State = FleetSpawning
				}
			case EventWorkerExited:
				w.State = HandleFinished
			case EventWorkerCrashed:
				w.State = HandleFinished
				w.Crashed = true
				status.Crashes++
			case EventWorkerTerminated:
				w.State = HandleTerminated
			}
		}
	}
	return status
}
