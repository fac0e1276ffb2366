package domain

import "time"

type PidStatus string

const (
	RUNNING PidStatus = "RUNNING"
	SLEEP   PidStatus = "SLEEP"
	STOP    PidStatus = "STOP"
	IDLE    PidStatus = "IDLE"
	ZOMBIE  PidStatus = "ZOMBIE"
	WAIT    PidStatus = "WAIT"
	LOCK    PidStatus = "LOCK"
	UNKNOWN PidStatus = "UNKNOWN"
)

// ToStatus maps the one-letter process state reported by the OS.
func ToStatus(status string) PidStatus {
	switch status {
	case "R":
		return RUNNING
	case "S":
		return SLEEP
	case "T":
		return STOP
	case "I":
		return IDLE
	case "Z":
		return ZOMBIE
	case "W":
		return WAIT
	case "L":
		return LOCK
	default:
		return UNKNOWN
	}
}

// NodeHealth is the last sample taken of the backend process.
type NodeHealth struct {
	PID           int32     `json:"pid"`
	PIDStatus     PidStatus `json:"pid_status"`
	CPU           float64   `json:"cpu_percent"`
	RAM           float32   `json:"ram_percent"`
	RSS           uint64    `json:"rss_bytes"`
	Goroutines    int       `json:"goroutines"`
	Subscriptions int       `json:"subscriptions"`
	Backlog       int       `json:"change_backlog"`
	Connections   int       `json:"realtime_connections"`
	SampledAt     time.Time `json:"sampled_at"`
}
