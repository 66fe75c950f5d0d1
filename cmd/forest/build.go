package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BretMeraki/Forest7-15-sub001/internal/engine"
	"github.com/BretMeraki/Forest7-15-sub001/internal/forest"
)

func buildCmd() *cobra.Command {
	var (
		contextJSON string
		depth       int
		force       bool
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "build <goal>",
		Short: "Decompose a goal into a task tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.TrimSpace(strings.Join(args, " "))
			if goal == "" {
				return fmt.Errorf("goal is required")
			}

			var goalCtx map[string]any
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &goalCtx); err != nil {
					goalCtx = map[string]any{"summary": contextJSON}
				}
			}

			ctx := cmd.Context()
			svc, cfg, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := svc.BuildTree(ctx, forest.BuildRequest{
				ProjectID: projectID,
				PathName:  pathName,
				Goal:      goal,
				Context:   goalCtx,
				Options: engine.Options{
					TargetDepth:     depth,
					ForceRegenerate: force,
					Strict:          strict || cfg.Generation.Strict,
				},
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("tree_id", tree.ID).
				Int("depth", tree.AvailableDepth).
				Int("branches", len(tree.Branches)).
				Int("tasks", len(tree.FrontierTasks)).
				Msg("tree built")
			return printJSON(tree)
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "goal context as free text or a JSON object")
	cmd.Flags().IntVar(&depth, "depth", 0, "levels to generate up front, 1-6")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if a tree already exists")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of substituting fallback content")
	return cmd
}
