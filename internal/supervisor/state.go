package supervisor

import "fmt"

type FleetState string

const (
	FleetIdle         FleetState = "idle"
	FleetCheckRunning FleetState = "check_running"
	FleetSpawning     FleetState = "spawning"
	FleetRunning      FleetState = "running"
	FleetCompleted    FleetState = "completed"
	FleetAborted      FleetState = "aborted"
)

var allowedFleetTransitions = map[FleetState]map[FleetState]struct{}{
	FleetIdle: {
		FleetCheckRunning: {},
		FleetSpawning:     {},
		FleetAborted:      {},
	},
	FleetCheckRunning: {
		FleetSpawning: {},
		FleetAborted:  {},
	},
	FleetSpawning: {
		FleetRunning: {},
		FleetAborted: {},
	},
	FleetRunning: {
		FleetCompleted: {},
		FleetAborted:   {},
	},
	FleetCompleted: {},
	FleetAborted:   {},
}

func (s FleetState) Terminal() bool {
	return s == FleetCompleted || s == FleetAborted
}

func ValidateFleetTransition(from, to FleetState) error {
	if _, ok := allowedFleetTransitions[from]; !ok {
		return fmt.Errorf("invalid fleet state: %q", from)
	}
	if _, ok := allowedFleetTransitions[to]; !ok {
		return fmt.Errorf("invalid fleet state: %q", to)
	}
	if _, ok := allowedFleetTransitions[from][to]; !ok {
		return fmt.Errorf("invalid fleet transition: %s -> %s", from, to)
	}
	return nil
}

type HandleState string

const (
	HandleSpawned    HandleState = "spawned"
	HandleRunning    HandleState = "running"
	HandleFinished   HandleState = "finished"
	HandleTerminated HandleState = "terminated"
)

var allowedHandleTransitions = map[HandleState]map[HandleState]struct{}{
	HandleSpawned: {
		HandleRunning:    {},
		HandleFinished:   {},
		HandleTerminated: {},
	},
	HandleRunning: {
		HandleFinished:   {},
		HandleTerminated: {},
	},
	HandleFinished:   {},
	HandleTerminated: {},
}

func (s HandleState) Exited() bool {
	return s == HandleFinished || s == HandleTerminated
}

func ValidateHandleTransition(from, to HandleState) error {
	if _, ok := allowedHandleTransitions[from]; !ok {
		return fmt.Errorf("invalid handle state: %q", from)
	}
	if _, ok := allowedHandleTransitions[from][to]; !ok {
		return fmt.Errorf("invalid handle transition: %s -> %s", from, to)
	}
	return nil
}
