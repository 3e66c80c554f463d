package cli

import (
	"context"
	"os"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/events"
	"github.com/linkmesh/linkmesh/internal/models"
	"github.com/linkmesh/linkmesh/internal/progress"
	"github.com/linkmesh/linkmesh/internal/track"
)

// newSynchronizer wires a job synchronizer: streaming via the WebSocket
// dialer, polling and force-complete via the HTTP client.
func newSynchronizer(cfg *config.Config, client *api.Client, jobID string, bus *events.Bus, initial *models.StatusFrame) *track.Synchronizer {
	dialer := api.NewStreamDialer(cfg, GetLogger())
	return track.New(track.Options{
		JobID:  jobID,
		Source: client,
		Bus:    bus,
		Log:    GetLogger(),
		Dial: func(ctx context.Context, id string) (track.Channel, error) {
			return dialer.Dial(ctx, id)
		},
		Reconnect: track.ReconnectPolicy{
			Interval:    cfg.ReconnectInterval,
			MaxAttempts: cfg.ReconnectMaxAttempts,
		},
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Initial:           initial,
	})
}

// followJob renders live progress until the job finishes or ctx is
// cancelled, then returns the final descriptor.
func followJob(ctx context.Context, syn *track.Synchronizer, bus *events.Bus) models.JobDescriptor {
	bar := progress.NewMonitorBar(os.Stderr)
	defer bar.Finish()

	statusCh := bus.Subscribe(events.EventStatus)
	defer bus.Unsubscribe(events.EventStatus, statusCh)

	bar.Update(syn.Descriptor())
	syn.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			syn.Stop()
			return syn.Descriptor()
		case ev, ok := <-statusCh:
			if !ok {
				return syn.Descriptor()
			}
			if st, isStatus := ev.(*events.StatusEvent); isStatus {
				bar.Update(st.Descriptor)
			}
		case <-syn.Done():
			bar.Update(syn.Descriptor())
			return syn.Descriptor()
		}
	}
}
