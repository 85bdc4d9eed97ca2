package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/parser"
)

func newSearchCmd() *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Runs one search cycle, qualifies what it finds, and prints the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sourceTypes := make([]lead.SourceType, 0, len(types))
			for _, raw := range types {
				t := lead.SourceType(raw)
				if !parser.KnownType(t) {
					return fmt.Errorf("%w: %q", parser.ErrUnknownSourceType, raw)
				}
				sourceTypes = append(sourceTypes, t)
			}
			summary, err := appInstance.SearchAndQualify(cmd.Context(), sourceTypes)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("search command finished",
				zap.Int("found", summary.Found),
				zap.Int("created", summary.Created),
				zap.Int("errors", summary.Errors),
			)
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "limit the cycle to these source types")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
