// Package track keeps a local job descriptor in sync with the analysis
// engine. It prefers the streaming channel, redials a dropped channel on a
// bounded schedule, and falls back to fixed-interval polling for the rest of
// the job once the redial budget is spent.
package track

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/events"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
)

// ErrJobFailed reports a force-complete refused because the job already
// failed. A failed descriptor is never promoted to completed.
var ErrJobFailed = errors.New("job already failed")

// Channel is one open streaming connection carrying status frames.
// *api.StreamChannel satisfies it.
type Channel interface {
	Receive() (models.StatusFrame, error)
	Ping() error
	Close() error
}

// DialFunc opens a streaming channel for a job.
type DialFunc func(ctx context.Context, jobID string) (Channel, error)

// StatusSource answers point-in-time status requests. *api.Client satisfies
// it.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (models.StatusFrame, error)
	ForceComplete(ctx context.Context, jobID string) (models.StatusFrame, error)
}

// Options configures a Synchronizer. JobID and Source are required; a nil
// Dial skips streaming entirely and polls from the start.
type Options struct {
	JobID  string
	Dial   DialFunc
	Source StatusSource
	Bus    *events.Bus
	Clock  Clock
	Log    *logging.Logger

	Reconnect         ReconnectPolicy
	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	// Initial seeds the descriptor, e.g. from the submit response. When nil
	// the job starts as queued with zero progress.
	Initial *models.StatusFrame
}

// Synchronizer owns the canonical descriptor of one job. Every accepted frame
// replaces the descriptor wholesale (last writer wins); once the job is
// terminal the descriptor is immutable. ForceComplete promotes a job that
// has not settled yet; it never rewrites a terminal descriptor. All methods
// are safe for concurrent use.
type Synchronizer struct {
	jobID     string
	dial      DialFunc
	source    StatusSource
	bus       *events.Bus
	clock     Clock
	log       *logging.Logger
	policy    ReconnectPolicy
	pollEvery time.Duration
	heartbeat time.Duration

	mu        sync.Mutex
	desc      models.JobDescriptor
	mode      Mode
	statusLog *StatusLog

	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce sync.Once
}

// New creates a synchronizer. Call Start to begin following the job.
func New(opts Options) *Synchronizer {
	clock := opts.Clock
	if clock == nil {
		clock = NewClock()
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	policy := opts.Reconnect
	if policy.Interval <= 0 {
		policy.Interval = config.DefaultReconnectInterval
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = config.DefaultReconnectMaxAttempts
	}
	pollEvery := opts.PollInterval
	if pollEvery <= 0 {
		pollEvery = config.DefaultPollInterval
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = config.DefaultHeartbeatInterval
	}

	s := &Synchronizer{
		jobID:     opts.JobID,
		dial:      opts.Dial,
		source:    opts.Source,
		bus:       opts.Bus,
		clock:     clock,
		log:       log.Str("job_id", opts.JobID),
		policy:    policy,
		pollEvery: pollEvery,
		heartbeat: heartbeat,
		statusLog: NewStatusLog(),
		done:      make(chan struct{}),
		desc: models.JobDescriptor{
			ID:     opts.JobID,
			Status: models.StatusQueued,
		},
	}
	if opts.Initial != nil {
		s.desc = descriptorFrom(opts.JobID, *opts.Initial)
		s.statusLog.Append(clock.Now(), opts.Initial.Message)
	}
	return s
}

func descriptorFrom(jobID string, frame models.StatusFrame) models.JobDescriptor {
	return models.JobDescriptor{
		ID:              jobID,
		Status:          frame.Status,
		Progress:        frame.Progress,
		Message:         frame.Message,
		ResultReference: frame.ResultReference,
	}
}

// JobID returns the job this synchronizer follows.
func (s *Synchronizer) JobID() string { return s.jobID }

// Descriptor returns a snapshot of the canonical descriptor. A snapshot is
// always a complete frame, never a partial merge.
func (s *Synchronizer) Descriptor() models.JobDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Mode returns the current transport mode.
func (s *Synchronizer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Log returns the status history.
func (s *Synchronizer) Log() *StatusLog { return s.statusLog }

// Done is closed when the synchronizer has shut down, either because the job
// reached a terminal status or because Stop was called.
func (s *Synchronizer) Done() <-chan struct{} { return s.done }

// Start begins following the job. It returns immediately; progress is
// observable through the event bus and Descriptor. Starting twice is a no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop shuts the synchronizer down and waits for the run loop to exit.
// Stopping twice, or stopping before Start, is safe.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		started := s.started
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-s.done
		} else {
			s.setMode(ModeStopped)
			close(s.done)
		}
	})
}

func (s *Synchronizer) run(ctx context.Context) {
	defer func() {
		s.setMode(ModeStopped)
		close(s.done)
	}()

	if s.Descriptor().Status.Terminal() {
		return
	}

	if s.dial != nil {
		if finished := s.streamPhase(ctx); finished {
			return
		}
		s.log.Warn().
			Int("attempts", s.policy.MaxAttempts).
			Msg("Streaming reconnect budget spent, switching to polling")
	}
	s.pollPhase(ctx)
}

// streamPhase runs streaming with bounded redial. It returns true when the
// job finished or the context was cancelled, false when the reconnect budget
// is spent and polling should take over.
func (s *Synchronizer) streamPhase(ctx context.Context) bool {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return true
		}

		ch, err := s.dial(ctx, s.jobID)
		if err != nil {
			attempts++
			s.log.Debug().Err(err).Int("attempt", attempts).Msg("Streaming dial failed")
			if attempts >= s.policy.MaxAttempts {
				return false
			}
			s.setMode(ModeReconnecting)
			select {
			case <-ctx.Done():
				return true
			case <-s.clock.After(s.policy.Interval):
			}
			continue
		}

		// A successful open resets the budget, matching the engine's
		// browser client.
		attempts = 0
		s.setMode(ModeStreaming)

		finished := s.consume(ctx, ch)
		ch.Close()
		if finished || ctx.Err() != nil {
			return true
		}

		s.setMode(ModeReconnecting)
		select {
		case <-ctx.Done():
			return true
		case <-s.clock.After(s.policy.Interval):
		}
	}
}

// consume reads frames from one open channel and keeps it alive with
// heartbeats. It returns true when the job reached a terminal status, false
// when the transport dropped.
func (s *Synchronizer) consume(ctx context.Context, ch Channel) bool {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	go s.heartbeatLoop(readCtx, ch)

	type received struct {
		frame models.StatusFrame
		err   error
	}
	frames := make(chan received)
	go func() {
		for {
			frame, err := ch.Receive()
			select {
			case frames <- received{frame, err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				var perr *models.ProtocolError
				if !errors.As(err, &perr) {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true
		case r := <-frames:
			if r.err != nil {
				var perr *models.ProtocolError
				if errors.As(r.err, &perr) {
					s.log.Warn().Err(r.err).Msg("Discarding malformed status frame")
					continue
				}
				s.log.Debug().Err(r.err).Msg("Streaming channel dropped")
				return false
			}
			if s.apply(r.frame) {
				return true
			}
		}
	}
}

func (s *Synchronizer) heartbeatLoop(ctx context.Context, ch Channel) {
	// The engine answers every ping with the current status frame, so the
	// first ping doubles as the initial status request.
	if err := ch.Ping(); err != nil {
		s.log.Debug().Err(err).Msg("Heartbeat failed")
		return
	}

	ticker := s.clock.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := ch.Ping(); err != nil {
				// The read loop notices the dead transport; nothing to
				// do here but stop pinging.
				s.log.Debug().Err(err).Msg("Heartbeat failed")
				return
			}
		}
	}
}

// pollPhase polls the status endpoint at a fixed interval until the job is
// terminal. There is no way back to streaming.
func (s *Synchronizer) pollPhase(ctx context.Context) {
	s.setMode(ModePolling)

	if s.pollOnce(ctx) {
		return
	}

	ticker := s.clock.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if s.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce fetches one status frame. It returns true when polling should end.
func (s *Synchronizer) pollOnce(ctx context.Context) bool {
	frame, err := s.source.JobStatus(ctx, s.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		var perr *models.ProtocolError
		switch {
		case errors.As(err, &perr):
			s.log.Warn().Err(err).Msg("Discarding malformed status frame")
		case errors.Is(err, api.ErrJobNotFound):
			// The engine keeps jobs in memory; a restart forgets them.
			s.markLost(err)
			return true
		default:
			s.log.Warn().Err(err).Msg("Status poll failed")
		}
		return false
	}
	return s.apply(frame)
}

// apply replaces the descriptor with the frame (last writer wins) and returns
// true when the new status is terminal. Frames arriving after a terminal
// status are ignored.
func (s *Synchronizer) apply(frame models.StatusFrame) bool {
	s.mu.Lock()
	if s.desc.Status.Terminal() {
		s.mu.Unlock()
		return true
	}
	s.desc = descriptorFrom(s.jobID, frame)
	desc := s.desc
	appended := s.statusLog.Append(s.clock.Now(), frame.Message)
	s.mu.Unlock()

	s.publish(desc, appended)
	return desc.Status.Terminal()
}

func (s *Synchronizer) publish(desc models.JobDescriptor, appended bool) {
	if s.bus == nil {
		return
	}
	s.bus.PublishStatus(s.jobID, desc)
	if appended {
		s.bus.PublishLog(s.jobID, desc.Message)
	}
	if desc.Status.Terminal() {
		if desc.Status == models.StatusFailed {
			s.bus.PublishError(s.jobID, desc.Message, nil)
		}
		s.bus.PublishComplete(s.jobID, desc.Status == models.StatusFailed, desc.ResultReference)
	}
}

// markLost fails the job locally when the engine no longer knows it.
func (s *Synchronizer) markLost(err error) {
	s.mu.Lock()
	if s.desc.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.desc = models.JobDescriptor{
		ID:       s.jobID,
		Status:   models.StatusFailed,
		Progress: s.desc.Progress,
		Message:  "Job no longer known to the engine",
	}
	desc := s.desc
	appended := s.statusLog.Append(s.clock.Now(), desc.Message)
	s.mu.Unlock()

	s.log.Error().Err(err).Msg("Job lost")
	s.publish(desc, appended)
}

// ForceComplete promotes the job to completed through the engine's
// force-complete endpoint. It is idempotent: when the descriptor is already
// completed the cached value is returned without a network call. A job that
// already failed stays failed; ErrJobFailed is returned and the descriptor
// is left alone, including when the failure lands while the admin request is
// in flight.
func (s *Synchronizer) ForceComplete(ctx context.Context) (models.JobDescriptor, error) {
	s.mu.Lock()
	if s.desc.Status.Terminal() {
		desc := s.desc
		s.mu.Unlock()
		if desc.Status == models.StatusCompleted {
			return desc, nil
		}
		return desc, ErrJobFailed
	}
	s.mu.Unlock()

	frame, err := s.source.ForceComplete(ctx, s.jobID)
	if err != nil {
		return models.JobDescriptor{}, err
	}

	s.mu.Lock()
	if s.desc.Status.Terminal() {
		desc := s.desc
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if desc.Status == models.StatusCompleted {
			return desc, nil
		}
		return desc, ErrJobFailed
	}
	s.desc = descriptorFrom(s.jobID, frame)
	desc := s.desc
	appended := s.statusLog.Append(s.clock.Now(), frame.Message)
	cancel := s.cancel
	s.mu.Unlock()

	s.publish(desc, appended)
	if cancel != nil {
		cancel()
	}
	return desc, nil
}

func (s *Synchronizer) setMode(mode Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.mu.Unlock()
	s.log.Debug().Str("mode", string(mode)).Msg("Transport mode changed")
}
