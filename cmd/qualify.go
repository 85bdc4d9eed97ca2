package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newQualifyCmd() *cobra.Command {
	var allNew bool
	cmd := &cobra.Command{
		Use:   "qualify [lead-id]",
		Short: "Analyzes and qualifies one lead, or every new lead with --all-new",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if allNew == (len(args) == 1) {
				return errors.New("pass exactly one of a lead id or --all-new")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if allNew {
				n, err := appInstance.QualifyNew(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"qualified": n})
			}
			res, err := appInstance.Qualify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&allNew, "all-new", false, "qualify every lead in the new status")
	return cmd
}
