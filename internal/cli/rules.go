package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/rules"
)

// newRulesCmd creates the 'rules' command group.
func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Linking rule matrix (show, set, defaults)",
		Long: `Manage the linking rule matrix: per source/target segment pair, the
minimum and maximum number of internal links the analysis should target.`,
	}

	rulesCmd.AddCommand(newRulesShowCmd())
	rulesCmd.AddCommand(newRulesSetCmd())
	rulesCmd.AddCommand(newRulesDefaultsCmd())

	return rulesCmd
}

// loadValidator pulls the engine's rule matrix into a fresh validator. The
// stored matrix is expected to be valid; a bad set is surfaced, not repaired.
func loadValidator(cap int) (*rules.Validator, error) {
	client, _, err := getAPIClient()
	if err != nil {
		return nil, err
	}

	wire, err := client.GetRules(GetContext())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	v := rules.NewValidator(cap)
	if err := v.ReplaceAll(wire.ToMatrix()); err != nil {
		return nil, fmt.Errorf("engine returned an invalid rule set: %w", err)
	}
	return v, nil
}

func printMatrix(v *rules.Validator) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Source", "Target", "Min", "Max")
	for _, key := range v.Pairs() {
		rule, _ := v.Get(key.Source, key.Target)
		table.Append(key.Source, key.Target,
			strconv.Itoa(rule.MinLinks), strconv.Itoa(rule.MaxLinks))
	}
	return table.Render()
}

// newRulesShowCmd creates the 'rules show' command.
func newRulesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the engine's current rule matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig()
			if err != nil {
				return err
			}
			v, err := loadValidator(cfg.RuleCap)
			if err != nil {
				return err
			}
			if v.Len() == 0 {
				fmt.Println("No rules configured")
				return nil
			}
			return printMatrix(v)
		},
	}
	return cmd
}

// newRulesSetCmd creates the 'rules set' command.
func newRulesSetCmd() *cobra.Command {
	var (
		minLinks int
		maxLinks int
	)

	cmd := &cobra.Command{
		Use:   "set <source-segment> <target-segment>",
		Short: "Set the min/max links for one segment pair",
		Long: `Update one cell of the rule matrix. Min and max are kept consistent:
raising the minimum above the maximum drags the maximum up, lowering the
maximum below the minimum drags the minimum down. Values above the cap are
clamped to it; negative values and pairs the matrix does not know are
rejected.

Example:
  linkmesh rules set blog produit --min 2 --max 4
  linkmesh rules set blog blog --min 7   # max follows to 7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]

			if !cmd.Flags().Changed("min") && !cmd.Flags().Changed("max") {
				return fmt.Errorf("nothing to change: pass --min and/or --max")
			}

			cfg, err := getConfig()
			if err != nil {
				return err
			}
			v, err := loadValidator(cfg.RuleCap)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("min") {
				if minLinks > cfg.RuleCap {
					minLinks = cfg.RuleCap
				}
				if _, err := v.SetMin(source, target, minLinks); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("max") {
				if maxLinks > cfg.RuleCap {
					maxLinks = cfg.RuleCap
				}
				if _, err := v.SetMax(source, target, maxLinks); err != nil {
					return err
				}
			}

			client, _, err := getAPIClient()
			if err != nil {
				return err
			}
			if err := client.SaveRules(GetContext(), v.Matrix().ToWire()); err != nil {
				return fmt.Errorf("failed to save rules: %w", err)
			}

			rule, _ := v.Get(source, target)
			fmt.Printf("Rule %s -> %s: min %d, max %d\n",
				source, target, rule.MinLinks, rule.MaxLinks)
			return nil
		},
	}

	cmd.Flags().IntVar(&minLinks, "min", 0, "Minimum links for the pair")
	cmd.Flags().IntVar(&maxLinks, "max", 0, "Maximum links for the pair")

	return cmd
}

// newRulesDefaultsCmd creates the 'rules defaults' command.
func newRulesDefaultsCmd() *cobra.Command {
	var contentFile string

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Replace the rule matrix with the stock defaults",
		Long: `Replace the whole rule matrix with the stock grid. With --content-file
(the engine-side path returned by an upload) the grid is expanded to cover
every segment pair found in that export. The replacement is all-or-nothing.

Example:
  linkmesh rules defaults
  linkmesh rules defaults --content-file uploads/content_pages.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()

			matrix := rules.DefaultMatrix()
			if contentFile != "" {
				segments, err := client.Segments(ctx, contentFile)
				if err != nil {
					return fmt.Errorf("failed to list segments: %w", err)
				}
				matrix = rules.MatrixForSegments(segments)
			}

			v := rules.NewValidator(cfg.RuleCap)
			if err := v.ReplaceAll(matrix); err != nil {
				return err
			}
			if err := client.SaveRules(ctx, v.Matrix().ToWire()); err != nil {
				return fmt.Errorf("failed to save rules: %w", err)
			}

			fmt.Printf("Rule matrix replaced (%d pairs)\n", v.Len())
			return printMatrix(v)
		},
	}

	cmd.Flags().StringVar(&contentFile, "content-file", "", "Engine-side content file to derive segments from")

	return cmd
}
