package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BretMeraki/Forest7-15-sub001/internal/pipeline"
)

func nextCmd() *cobra.Command {
	var (
		energy int
		mins   int
		focus  string
	)

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Select the next tasks to work on",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cfg, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if energy == 0 {
				energy = cfg.Selection.DefaultEnergy
			}
			if mins == 0 {
				mins = cfg.Selection.DefaultTimeMinutes
			}
			p, err := svc.GetPipeline(ctx, projectID, pathName, focus, pipeline.ResourceContext{
				EnergyLevel:          energy,
				TimeAvailableMinutes: mins,
			})
			if err != nil {
				return err
			}
			if p.Primary == nil {
				fmt.Println("All tasks are completed. Expand the tree or build a new one.")
				return nil
			}
			return printJSON(p)
		},
	}
	cmd.Flags().IntVar(&energy, "energy", 0, "current energy level, 1-5")
	cmd.Flags().IntVar(&mins, "time", 0, "minutes available")
	cmd.Flags().StringVar(&focus, "focus", "", "topic to bias selection toward")
	return cmd
}
