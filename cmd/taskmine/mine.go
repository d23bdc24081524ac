package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bingranl/task-mining/config"
	"github.com/bingranl/task-mining/forge"
	"github.com/bingranl/task-mining/internal/cli"
	"github.com/bingranl/task-mining/miner"
	"github.com/bingranl/task-mining/store"
)

var mineLimit int

var mineCmd = &cobra.Command{
	Use:   "mine <owner>/<name>",
	Short: "Scan merged change requests for failure-then-fix commit pairs",
	Long: `Mine resumes from the persisted cursor and walks merged change
requests in increasing id order. For each one it fetches the commit check
history, records every failing-commit/fixing-commit pair, and advances the
cursor. Safe to interrupt and re-run; already-recorded pairs are never
duplicated.`,
	Args: cobra.ExactArgs(1),
	RunE: runMine,
}

func init() {
	mineCmd.Flags().IntVar(&mineLimit, "limit", 0, "Max change requests this run (default from config)")
	rootCmd.AddCommand(mineCmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	out := cli.DefaultOutput()

	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	limit := cfg.Mining.Limit
	if mineLimit > 0 {
		limit = mineLimit
	}

	dir := repoDir(owner, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	logger, closeLog := newFileLogger(dir)
	defer closeLog()

	st, err := store.Open(resolveStorePath(owner, name))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	client := forge.NewClient(forge.Config{
		Logger:      logger,
		Token:       resolveToken(),
		Owner:       owner,
		Repo:        name,
		MaxAttempts: cfg.Mining.MaxAttempts,
		RetryBase:   cfg.RetryBase(),
	})

	engine, err := miner.New(miner.Config{
		Client: client,
		Store:  st,
		Logger: logger,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	out.Info(fmt.Sprintf("Mining %s/%s from change request #%d", owner, name, st.LastProcessedID()+1))

	result, err := engine.Mine(cmd.Context())
	if err != nil {
		return fmt.Errorf("mining: %w", err)
	}

	out.Printf("Processed %d change requests (%d skipped, %d gone)\n",
		result.Processed, result.Skipped, result.NotFound)
	out.Printf("Recorded %d new transitions (%d already known)\n",
		result.Emitted, result.Deduped)
	if result.Skipped > 0 {
		out.Warn(fmt.Sprintf("Cursor held at #%d; re-run to retry skipped change requests", result.Cursor))
	} else {
		out.Success(fmt.Sprintf("Cursor advanced to #%d", result.Cursor))
	}
	return nil
}
