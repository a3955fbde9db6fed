package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/config"
	redisinfra "guild-quiz-service/internal/infra/redis"
	"guild-quiz-service/internal/lib/slogcustom"
)

// NewSeedCmd loads a YAML quiz bank into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a YAML bank into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "quiz bank YAML (defaults to quiz.bank)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slogcustom.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("seed needs a persistent store.driver, got memory")
	}
	if file == "" {
		file = cfg.Quiz.Bank
	}
	quizzes, err := config.LoadQuizBank(file)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// write through the shared cache so running instances see the new bank
	var bank app.QuizBank = store
	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
		bank = redisinfra.NewQuizBank(client, store, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	}

	for _, quiz := range quizzes {
		saved, err := bank.CreateQuiz(ctx, quiz)
		if err != nil {
			return fmt.Errorf("seed quiz %q: %w", quiz.Question, err)
		}
		logger.Debug("quiz seeded", "id", saved.ID, "category", saved.Category)
	}
	logger.Info("quiz bank seeded", "file", file, "quizzes", len(quizzes), "driver", cfg.Store.Driver)
	return nil
}
