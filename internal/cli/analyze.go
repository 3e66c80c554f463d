package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/events"
	"github.com/linkmesh/linkmesh/internal/models"
	"github.com/linkmesh/linkmesh/internal/progress"
	"github.com/linkmesh/linkmesh/internal/track"
	"github.com/linkmesh/linkmesh/internal/workflow"
)

// newAnalyzeCmd creates the 'analyze' command.
func newAnalyzeCmd() *cobra.Command {
	var (
		contentPath string
		linksPath   string
		gscPath     string
		minSim      float64
		anchors     int
		noWatch     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Upload exports, submit an analysis, and follow the job",
		Long: `Run a full analysis: upload the content export (plus the optional
existing-links and Search Console exports), submit the job, and follow it
until it finishes.

Example:
  # Minimal run
  linkmesh analyze --content pages.xlsx

  # Full run with tuning
  linkmesh analyze --content pages.xlsx --links links.xlsx --gsc gsc.xlsx \
    --min-similarity 0.3 --anchors 5

  # Submit and detach; follow later with 'linkmesh jobs watch'
  linkmesh analyze --content pages.xlsx --no-watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()

			if contentPath == "" {
				return fmt.Errorf("--content is required")
			}

			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()

			bus := events.NewBus(events.DefaultBuffer)
			defer bus.Close()

			controller := workflow.New(workflow.Options{
				Engine: client,
				Bus:    bus,
				Log:    log,
				NewSynchronizer: func(jobID string) *track.Synchronizer {
					return newSynchronizer(cfg, client, jobID, bus, nil)
				},
			})

			// Uploads
			totalFiles := 1
			if linksPath != "" {
				totalFiles++
			}
			if gscPath != "" {
				totalFiles++
			}
			ui := progress.NewUploadUI(totalFiles)

			upload := func(slot api.UploadSlot, label, path string) (models.FileDescriptor, error) {
				info, err := os.Stat(path)
				if err != nil {
					return models.FileDescriptor{}, fmt.Errorf("cannot read %s file: %w", label, err)
				}
				fb := ui.StartFile(label, path, info.Size())
				desc, err := client.UploadFile(ctx, slot, path, func(r io.Reader) io.Reader {
					return fb.WrapReader(r)
				})
				fb.Complete(desc.Path, err)
				if err != nil {
					return models.FileDescriptor{}, fmt.Errorf("%s upload failed: %w", label, err)
				}
				return desc, nil
			}

			contentDesc, err := upload(api.SlotContent, "content", contentPath)
			if err != nil {
				return err
			}
			if err := controller.AttachContent(contentDesc); err != nil {
				return err
			}

			if linksPath != "" {
				desc, err := upload(api.SlotLinks, "links", linksPath)
				if err != nil {
					return err
				}
				if err := controller.AttachLinks(desc); err != nil {
					return err
				}
			}
			if gscPath != "" {
				desc, err := upload(api.SlotGSC, "gsc", gscPath)
				if err != nil {
					return err
				}
				if err := controller.AttachGSC(desc); err != nil {
					return err
				}
			}
			ui.Wait()

			// Configure and submit
			if err := controller.Configure(models.NewAnalysisConfig(minSim, anchors)); err != nil {
				return err
			}

			jobID, err := controller.Submit(ctx)
			if err != nil {
				var subErr *api.SubmissionError
				if errors.As(err, &subErr) {
					// The run is back in configuring; a retry does not
					// re-upload anything.
					return fmt.Errorf("%w (fix the inputs and rerun, uploads are kept server-side)", err)
				}
				return err
			}
			fmt.Printf("Job submitted: %s\n", jobID)

			if noWatch {
				fmt.Printf("Follow it with: linkmesh jobs watch %s\n", jobID)
				return nil
			}

			syn := controller.Synchronizer()
			if syn == nil {
				return fmt.Errorf("job %s has no active monitor", jobID)
			}
			desc := followJob(ctx, syn, bus)

			switch desc.Status {
			case models.StatusCompleted:
				fmt.Printf("Analysis completed: %s\n", desc.Message)
				if desc.ResultReference != "" {
					fmt.Printf("Results: linkmesh results %s\n", jobID)
				}
				return nil
			case models.StatusFailed:
				return fmt.Errorf("analysis failed: %s", desc.Message)
			default:
				fmt.Printf("Detached from job %s (status %s); resume with: linkmesh jobs watch %s\n",
					jobID, desc.Status, jobID)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&contentPath, "content", "", "Content export file (.xlsx or .csv, required)")
	cmd.Flags().StringVar(&linksPath, "links", "", "Existing internal links export (optional)")
	cmd.Flags().StringVar(&gscPath, "gsc", "", "Google Search Console export (optional)")
	cmd.Flags().Float64Var(&minSim, "min-similarity", models.DefaultMinSimilarity, "Minimum similarity score (0-1)")
	cmd.Flags().IntVar(&anchors, "anchors", models.DefaultAnchorSuggestions, "Anchor suggestions per link (1-10)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Submit and exit without following the job")

	return cmd
}
