// Package workflow drives an analysis run from input collection through
// submission and monitoring to a terminal phase.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/events"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
	"github.com/linkmesh/linkmesh/internal/track"
)

// Phase is one step of the run lifecycle.
type Phase string

const (
	// PhaseCollectingInputs waits for the content export (required) and the
	// optional links and GSC exports.
	PhaseCollectingInputs Phase = "collecting_inputs"
	// PhaseConfiguring has all inputs attached; analysis tunables may change.
	PhaseConfiguring Phase = "configuring"
	// PhaseSubmitting has a submission in flight. At most one at a time.
	PhaseSubmitting Phase = "submitting"
	// PhaseMonitoring follows the running job.
	PhaseMonitoring Phase = "monitoring"
	// PhaseCompleted is terminal: results are available.
	PhaseCompleted Phase = "completed"
	// PhaseFailed is terminal: the run failed.
	PhaseFailed Phase = "failed"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// TransitionError reports an operation attempted in the wrong phase.
type TransitionError struct {
	Phase Phase
	Op    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s in phase %q", e.Op, e.Phase)
}

// ErrSubmitInFlight is returned when Submit is called while a previous
// submission has not settled.
var ErrSubmitInFlight = errors.New("a submission is already in flight")

// State is a snapshot of one run. It is replaced wholesale on every
// transition; readers never observe a half-updated run.
type State struct {
	RunID  string
	Phase  Phase
	Config models.AnalysisConfig

	Content *models.FileDescriptor
	Links   *models.FileDescriptor
	GSC     *models.FileDescriptor

	JobID string
	Job   models.JobDescriptor

	// LastError holds the message of the error that sent the run back to
	// configuring or into the failed phase.
	LastError string
}

// Engine is the submission surface the controller needs. *api.Client
// satisfies it.
type Engine interface {
	SubmitAnalysis(ctx context.Context, content models.FileDescriptor, links, gsc *models.FileDescriptor, cfg models.AnalysisConfig) (string, error)
}

// Options configures a Controller. Engine is required. NewSynchronizer may
// be nil, in which case monitoring is not started and the caller follows the
// job itself.
type Options struct {
	Engine Engine
	Bus    *events.Bus
	Log    *logging.Logger

	// NewSynchronizer builds the synchronizer for a freshly submitted job.
	NewSynchronizer func(jobID string) *track.Synchronizer
}

// Controller is the run state machine. All methods are safe for concurrent
// use. A generation counter ties asynchronous completions to the run that
// started them; Reset bumps it so stale events from an abandoned run can
// never touch the new one.
type Controller struct {
	engine  Engine
	bus     *events.Bus
	log     *logging.Logger
	newSync func(jobID string) *track.Synchronizer

	mu         sync.Mutex
	state      State
	generation uint64
	sync       *track.Synchronizer
	submitting bool
}

// New creates a controller in the collecting-inputs phase.
func New(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Controller{
		engine:  opts.Engine,
		bus:     opts.Bus,
		log:     log,
		newSync: opts.NewSynchronizer,
		state:   freshState(),
	}
}

func freshState() State {
	return State{
		RunID:  uuid.NewString(),
		Phase:  PhaseCollectingInputs,
		Config: models.NewAnalysisConfig(models.DefaultMinSimilarity, models.DefaultAnchorSuggestions),
	}
}

// State returns a snapshot of the current run.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Synchronizer returns the active job synchronizer, or nil outside the
// monitoring phase.
func (c *Controller) Synchronizer() *track.Synchronizer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync
}

// transition moves to next and publishes the change. Caller holds mu.
func (c *Controller) transition(next Phase) {
	old := c.state.Phase
	if old == next {
		return
	}
	c.state.Phase = next
	c.log.Debug().
		Str("run_id", c.state.RunID).
		Str("from", string(old)).
		Str("to", string(next)).
		Msg("Phase transition")
	if c.bus != nil {
		c.bus.PublishStateChange(c.state.RunID, string(old), string(next), c.state.JobID)
	}
}

// AttachContent records the uploaded content export and, from
// collecting-inputs, advances to configuring. Re-attaching while configuring
// replaces the file.
func (c *Controller) AttachContent(desc models.FileDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case PhaseCollectingInputs, PhaseConfiguring:
	default:
		return &TransitionError{Phase: c.state.Phase, Op: "attach content file"}
	}
	c.state.Content = &desc
	if c.state.Phase == PhaseCollectingInputs {
		c.transition(PhaseConfiguring)
	}
	return nil
}

// AttachLinks records the optional existing-links export.
func (c *Controller) AttachLinks(desc models.FileDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case PhaseCollectingInputs, PhaseConfiguring:
	default:
		return &TransitionError{Phase: c.state.Phase, Op: "attach links file"}
	}
	c.state.Links = &desc
	return nil
}

// AttachGSC records the optional Search Console export.
func (c *Controller) AttachGSC(desc models.FileDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case PhaseCollectingInputs, PhaseConfiguring:
	default:
		return &TransitionError{Phase: c.state.Phase, Op: "attach GSC file"}
	}
	c.state.GSC = &desc
	return nil
}

// Configure sets the analysis tunables. Allowed while configuring only.
func (c *Controller) Configure(cfg models.AnalysisConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseConfiguring {
		return &TransitionError{Phase: c.state.Phase, Op: "configure"}
	}
	c.state.Config = models.NewAnalysisConfig(cfg.MinSimilarity, cfg.AnchorSuggestions)
	return nil
}

// Submit sends the run to the engine. Only one submission can be in flight;
// a second call while one is pending returns ErrSubmitInFlight. On a
// submission error the run returns to configuring so it can be retried
// without re-uploading. On success the run moves to monitoring and the job
// synchronizer starts.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if c.state.Phase != PhaseConfiguring {
		phase := c.state.Phase
		c.mu.Unlock()
		return "", &TransitionError{Phase: phase, Op: "submit"}
	}
	c.submitting = true
	gen := c.generation
	content := *c.state.Content
	links := c.state.Links
	gsc := c.state.GSC
	cfg := c.state.Config
	c.transition(PhaseSubmitting)
	c.mu.Unlock()

	jobID, err := c.engine.SubmitAnalysis(ctx, content, links, gsc, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		// Reset won the race; this run is gone. The job, if created, is
		// abandoned.
		if err == nil {
			c.log.Warn().Str("job_id", jobID).Msg("Run reset during submission, abandoning job")
		}
		return "", context.Canceled
	}
	c.submitting = false

	if err != nil {
		c.state.LastError = err.Error()
		c.transition(PhaseConfiguring)
		if c.bus != nil {
			c.bus.PublishError("", "submission failed", err)
		}
		return "", err
	}

	c.state.JobID = jobID
	c.state.LastError = ""
	c.state.Job = models.JobDescriptor{ID: jobID, Status: models.StatusQueued}
	c.transition(PhaseMonitoring)

	if c.newSync != nil {
		syn := c.newSync(jobID)
		c.sync = syn
		syn.Start(ctx)
		go c.watch(gen, syn)
	}
	return jobID, nil
}

// watch waits for the synchronizer to finish and settles the run, unless a
// reset has moved the controller on to a newer generation.
func (c *Controller) watch(gen uint64, syn *track.Synchronizer) {
	<-syn.Done()
	desc := syn.Descriptor()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return
	}
	c.state.Job = desc
	switch desc.Status {
	case models.StatusCompleted:
		c.transition(PhaseCompleted)
	case models.StatusFailed:
		c.state.LastError = desc.Message
		c.transition(PhaseFailed)
	default:
		// Stopped before the job finished; the run stays in monitoring
		// until the user resets or resumes it.
	}
}

// ForceComplete promotes the monitored job to completed. Allowed while
// monitoring only; the watcher then settles the run.
func (c *Controller) ForceComplete(ctx context.Context) (models.JobDescriptor, error) {
	c.mu.Lock()
	if c.state.Phase != PhaseMonitoring || c.sync == nil {
		phase := c.state.Phase
		c.mu.Unlock()
		return models.JobDescriptor{}, &TransitionError{Phase: phase, Op: "force-complete"}
	}
	syn := c.sync
	c.mu.Unlock()

	return syn.ForceComplete(ctx)
}

// Reset abandons the current run from any phase and returns to
// collecting-inputs with a new run id. The old synchronizer is stopped;
// anything it still emits is ignored.
func (c *Controller) Reset() {
	c.mu.Lock()
	old := c.sync
	oldRun := c.state.RunID
	oldPhase := c.state.Phase
	c.generation++
	c.sync = nil
	c.submitting = false
	c.state = freshState()
	newRun := c.state.RunID
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	c.log.Debug().
		Str("old_run_id", oldRun).
		Str("run_id", newRun).
		Str("from", string(oldPhase)).
		Msg("Run reset")
	if c.bus != nil {
		c.bus.PublishStateChange(newRun, string(oldPhase), string(PhaseCollectingInputs), "")
	}
}

// Err returns the last user-visible error message, if any.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LastError
}

// Ensure the API client keeps satisfying the Engine surface.
var _ Engine = (*api.Client)(nil)
