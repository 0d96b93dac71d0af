package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFleetTransitions(t *testing.T) {
	t.Parallel()

	valid := [][2]FleetState{
		{FleetIdle, FleetCheckRunning},
		{FleetIdle, FleetSpawning},
		{FleetCheckRunning, FleetSpawning},
		{FleetCheckRunning, FleetAborted},
		{FleetSpawning, FleetRunning},
		{FleetSpawning, FleetAborted},
		{FleetRunning, FleetCompleted},
		{FleetRunning, FleetAborted},
	}
	for _, tr := range valid {
		require.NoError(t, ValidateFleetTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	invalid := [][2]FleetState{
		{FleetIdle, FleetCompleted},
		{FleetCheckRunning, FleetRunning},
		{FleetCompleted, FleetAborted},
		{FleetAborted, FleetSpawning},
		{FleetState("bogus"), FleetIdle},
	}
	for _, tr := range invalid {
		require.Error(t, ValidateFleetTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	require.NoError(t, ValidateHandleTransition(HandleSpawned, HandleRunning))
	require.NoError(t, ValidateHandleTransition(HandleRunning, HandleTerminated))
	require.Error(t, ValidateHandleTransition(HandleFinished, HandleTerminated))
	require.Error(t, ValidateHandleTransition(HandleTerminated, HandleRunning))
}

func TestSummarizeReplaysLatestRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fleet", "events.jsonl")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	old := &eventLog{path: path, runID: "run-old", now: func() time.Time { return ts }}
	require.NoError(t, old.emit(EventFleetStarted, "", nil))
	require.NoError(t, old.emit(EventWorkerSpawned, "train-0", WorkerPayload{Role: "train", ID: 0, PID: 10}))

	cur := &eventLog{path: path, runID: "run-new", now: func() time.Time { return ts.Add(time.Minute) }}
	zero, one := 0, 1
	require.NoError(t, cur.emit(EventFleetStarted, "", nil))
	require.NoError(t, cur.emit(EventWorkerSpawned, "check-0", WorkerPayload{Role: "check", ID: 0, PID: 20}))
	require.NoError(t, cur.emit(EventWorkerExited, "check-0", WorkerPayload{Role: "check", ID: 0, PID: 20, ExitCode: &zero}))
	require.NoError(t, cur.emit(EventCheckPassed, "check-0", nil))
	require.NoError(t, cur.emit(EventWorkerSpawned, "train-1", WorkerPayload{Role: "train", ID: 1, PID: 21}))
	require.NoError(t, cur.emit(EventWorkerSpawned, "train-2", WorkerPayload{Role: "train", ID: 2, PID: 22}))
	require.NoError(t, cur.emit(EventFleetRunning, "", nil))
	require.NoError(t, cur.emit(EventWorkerCrashed, "train-1", WorkerPayload{Role: "train", ID: 1, PID: 21, ExitCode: &one}))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 10)

	status := Summarize(events)
	require.Equal(t, "run-new", status.RunID)
	require.Equal(t, FleetRunning, status.State)
	require.Equal(t, 1, status.Crashes)
	require.Len(t, status.Workers, 3)
	require.Equal(t, "check-0", status.Workers[0].Name)
	require.Equal(t, HandleFinished, status.Workers[0].State)
	require.Equal(t, HandleFinished, status.Workers[1].State)
	require.True(t, status.Workers[1].Crashed)
	require.Equal(t, 1, status.Workers[1].ExitCode)
	require.Equal(t, HandleRunning, status.Workers[2].State)
	require.Equal(t, 22, status.Workers[2].PID)
	require.Equal(t, ts.Add(time.Minute), status.Updated)

	require.NoError(t, cur.emit(EventStopRequested, "", map[string]any{"reason": "signal"}))
	require.NoError(t, cur.emit(EventWorkerTerminated, "train-2", WorkerPayload{Role: "train", ID: 2}))
	require.NoError(t, cur.emit(EventFleetAborted, "", nil))
	events, err = ReadEvents(path)
	require.NoError(t, err)
	status = Summarize(events)
	require.Equal(t, FleetAborted, status.State)
	require.True(t, status.Stopped)
	require.Equal(t, HandleTerminated, status.Workers[2].State)
	require.Equal(t, EventFleetAborted, status.LastType)
}

func TestReadEventsRejectsInvalidLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.Error(t, AppendEventJSONL(path, Event{Type: EventFleetStarted}))
	require.NoError(t, AppendEventJSONL(path, Event{EventID: NewEventID(), RunID: "r", Type: EventFleetStarted, TS: time.Now()}))
	_, err := ReadEvents(path)
	require.NoError(t, err)
	_, err = ReadEvents(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestEnsureRunLayout(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	paths, err := EnsureRunLayout(base)
	require.NoError(t, err)
	require.DirExists(t, paths.FleetDir)
	require.DirExists(t, paths.WorkersDir)
	require.Equal(t, filepath.Join(base, "workers", "train-3"), paths.WorkerDir("train-3"))
	require.Equal(t, filepath.Join(base, "config.json"), paths.ConfigPath)

	_, err = EnsureRunLayout("")
	require.Error(t, err)
}
