package messaging

import (
	"time"
)

// RTTMeasurer is implemented by clients that can report a broker round trip.
type RTTMeasurer interface {
	RTT() (time.Duration, error)
}

// HealthStatus describes a broker connection for readiness endpoints.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and, when supported,
// how long a round trip to the broker takes.
func CheckClientHealth(client Client) HealthStatus {
	status := HealthStatus{}
	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if m, ok := client.(RTTMeasurer); ok {
		rtt, err := m.RTT()
		if err != nil {
			status.Error = "rtt: " + err.Error()
			return status
		}
		status.LatencyMs = rtt.Milliseconds()
	}
	return status
}
