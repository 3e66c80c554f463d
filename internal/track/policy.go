package track

import (
	"time"

	"github.com/linkmesh/linkmesh/internal/config"
)

// Mode is the synchronizer's current transport mode.
type Mode string

const (
	// ModeStreaming means status frames arrive over the live channel.
	ModeStreaming Mode = "streaming"
	// ModeReconnecting means the channel dropped and bounded redial is running.
	ModeReconnecting Mode = "reconnecting"
	// ModePolling means the reconnect budget is spent; status comes from
	// fixed-interval polls for the rest of the job.
	ModePolling Mode = "polling"
	// ModeStopped means the synchronizer has shut down.
	ModeStopped Mode = "stopped"
)

// ReconnectPolicy bounds the redial loop after a streaming drop. Attempts are
// spaced a fixed Interval apart; once MaxAttempts fail in a row the
// synchronizer switches to polling and never tries the stream again.
type ReconnectPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy mirrors the engine's web client: every 3 seconds,
// at most 10 times.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Interval:    config.DefaultReconnectInterval,
		MaxAttempts: config.DefaultReconnectMaxAttempts,
	}
}
