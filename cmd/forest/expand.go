package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func expandCmd() *cobra.Command {
	var (
		depth  int
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand the tree to a deeper level",
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 1 {
				return fmt.Errorf("--depth is required")
			}

			ctx := cmd.Context()
			svc, _, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := svc.ExpandTree(ctx, projectID, pathName, depth, strict)
			if err != nil {
				return err
			}
			log.Info().
				Str("tree_id", tree.ID).
				Int("depth", tree.AvailableDepth).
				Msg("tree expanded")
			return printJSON(tree)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "depth to expand to, 1-6")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of substituting fallback content")
	return cmd
}
