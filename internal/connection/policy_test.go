package connection

import (
	"testing"
	"time"
)

func TestFixedDelay(t *testing.T) {
	p := FixedDelay(5 * time.Second)
	for _, attempt := range []int{0, 1, 10, 1000} {
		if got := p.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  ExponentialBackoff
		attempt int
		want    time.Duration
	}{
		{"first attempt", ExponentialBackoff{Base: time.Second, Max: time.Minute}, 0, time.Second},
		{"second attempt", ExponentialBackoff{Base: time.Second, Max: time.Minute}, 1, 2 * time.Second},
		{"fifth attempt", ExponentialBackoff{Base: time.Second, Max: time.Minute}, 4, 16 * time.Second},
		{"capped", ExponentialBackoff{Base: time.Second, Max: time.Minute}, 10, time.Minute},
		{"large attempt", ExponentialBackoff{Base: time.Second, Max: time.Minute}, 1 << 20, time.Minute},
		{"zero max", ExponentialBackoff{Base: time.Second}, 100, time.Hour},
		{"base above max", ExponentialBackoff{Base: time.Hour, Max: time.Minute}, 0, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateStopped:      "stopped",
		State(99):         "unknown",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(st), got, want)
		}
	}
}
