package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

func completeCmd() *cobra.Command {
	var (
		quality     int
		duration    int
		difficulty  int
		reflections string
		learned     []string
		struggled   []string
		broke       []string
		interests   []string
	)

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Record a task completion with reflections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.Atoi(args[0])
			if err != nil || taskID < 1 {
				return fmt.Errorf("task-id must be a positive integer")
			}

			ctx := cmd.Context()
			svc, _, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.RecordCompletion(ctx, projectID, pathName, taskID, hta.CompletionRecord{
				Quality:          quality,
				DurationMinutes:  duration,
				DifficultyRating: difficulty,
				Reflections:      reflections,
				LearningOutcomes: learned,
				StrugglingAreas:  struggled,
				Breakthroughs:    broke,
				NextInterests:    interests,
			})
			if err != nil {
				return err
			}

			if !result.Recorded {
				log.Warn().Int("task_id", taskID).Msg("task was already completed; first record kept")
			}
			if result.EvolutionTriggered {
				log.Info().
					Int("strategies", len(result.StrategiesApplied)).
					Msg("completion triggered tree evolution")
			}
			return printJSON(result)
		},
	}
	cmd.Flags().IntVar(&quality, "quality", 3, "self-assessed quality, 1-5")
	cmd.Flags().IntVar(&duration, "duration", 0, "actual minutes spent")
	cmd.Flags().IntVar(&difficulty, "difficulty", 3, "how hard it felt, 1-5")
	cmd.Flags().StringVar(&reflections, "reflections", "", "free-form notes")
	cmd.Flags().StringArrayVar(&learned, "learned", nil, "something learned (repeatable)")
	cmd.Flags().StringArrayVar(&struggled, "struggled", nil, "area that was hard (repeatable)")
	cmd.Flags().StringArrayVar(&broke, "breakthrough", nil, "breakthrough moment (repeatable)")
	cmd.Flags().StringArrayVar(&interests, "interest", nil, "topic to explore next (repeatable)")
	return cmd
}
