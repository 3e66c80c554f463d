package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/api"
)

// newSegmentsCmd creates the 'segments' command.
func newSegmentsCmd() *cobra.Command {
	var remotePath string

	cmd := &cobra.Command{
		Use:   "segments [content-file]",
		Short: "List the segments found in a content export",
		Long: `List the distinct segments of a content export. Pass a local file to
upload it first, or --remote with an engine-side path from a previous upload.

Example:
  linkmesh segments pages.xlsx
  linkmesh segments --remote uploads/content_pages.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()

			path := remotePath
			if path == "" {
				if len(args) == 0 {
					return fmt.Errorf("pass a local content file or --remote")
				}
				desc, err := client.UploadFile(ctx, api.SlotContent, args[0], func(r io.Reader) io.Reader { return r })
				if err != nil {
					return fmt.Errorf("content upload failed: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Uploaded %s → %s\n", args[0], desc.Path)
				path = desc.Path
			}

			segments, err := client.Segments(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to list segments: %w", err)
			}

			if len(segments) == 0 {
				fmt.Println("No segments found")
				return nil
			}
			for _, seg := range segments {
				fmt.Println(seg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remotePath, "remote", "", "Engine-side content file path (skips the upload)")

	return cmd
}
