package engine

// State is the failover monitor state.
type State int

const (
	// Idle means no provider is selected.
	Idle State = iota
	// Monitoring means a provider is selected and re-probed periodically.
	Monitoring
	// Reselecting means a full scan and selection pass is running.
	Reselecting
)

var allStates = []State{Idle, Monitoring, Reselecting}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Monitoring:
		return "monitoring"
	case Reselecting:
		return "reselecting"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger is the reason a full pass was started.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
	TriggerFilter   Trigger = "filter"
	TriggerRegistry Trigger = "registry"
	TriggerDegraded Trigger = "degraded"
	TriggerIdle     Trigger = "idle"
)
