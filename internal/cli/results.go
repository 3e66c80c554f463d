package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/api"
)

// newResultsCmd creates the 'results' command.
func newResultsCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "results <job-id>",
		Short: "Fetch the link suggestions of a completed job",
		Long: `Fetch and display the suggestions of a completed analysis.

Example:
  # Top 20 suggestions as a table
  linkmesh results 1a2b3c4d

  # Everything, machine-readable
  linkmesh results 1a2b3c4d --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			client, _, err := getAPIClient()
			if err != nil {
				return err
			}

			results, err := client.Results(GetContext(), jobID)
			if err != nil {
				if errors.Is(err, api.ErrJobNotFound) {
					return fmt.Errorf("no results for job %s (not found or not finished)", jobID)
				}
				return fmt.Errorf("failed to fetch results: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			stats := results.Stats
			fmt.Printf("Job %s: %d suggestions over %d pages (%d existing links, avg similarity %.2f)\n\n",
				jobID, stats.TotalSuggestions, stats.TotalPages,
				stats.TotalExistingLinks, stats.AverageSimilarity)

			if len(stats.SegmentStats) > 0 {
				segments := make([]string, 0, len(stats.SegmentStats))
				for seg := range stats.SegmentStats {
					segments = append(segments, seg)
				}
				sort.Strings(segments)

				segTable := tablewriter.NewWriter(os.Stdout)
				segTable.Header("Segment", "Pages", "Incoming", "Outgoing", "Suggestions")
				for _, seg := range segments {
					s := stats.SegmentStats[seg]
					segTable.Append(seg,
						strconv.Itoa(s.PageCount),
						strconv.Itoa(s.IncomingLinks),
						strconv.Itoa(s.OutgoingLinks),
						strconv.Itoa(s.Suggestions))
				}
				if err := segTable.Render(); err != nil {
					return err
				}
				fmt.Println()
			}

			suggestions := results.Suggestions
			shown := len(suggestions)
			if limit > 0 && limit < shown {
				shown = limit
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Source", "Target", "Segments", "Score", "Anchors")
			for _, s := range suggestions[:shown] {
				table.Append(
					s.SourceURL,
					s.TargetURL,
					s.SourceSegment+" → "+s.TargetSegment,
					fmt.Sprintf("%.2f", s.SimilarityScore),
					strings.Join(s.AnchorSuggestions, ", "))
			}
			if err := table.Render(); err != nil {
				return err
			}

			if shown < len(suggestions) {
				fmt.Printf("(Showing %d of %d suggestions. Use --limit or --json for more)\n",
					shown, len(suggestions))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw results as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Limit suggestions displayed (0 = all)")

	return cmd
}
