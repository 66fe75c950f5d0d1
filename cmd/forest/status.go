package main

import (
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the stored tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := svc.GetStatus(ctx, projectID, pathName)
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}
