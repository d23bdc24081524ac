package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bingranl/task-mining/classify"
	"github.com/bingranl/task-mining/config"
	"github.com/bingranl/task-mining/extract"
	"github.com/bingranl/task-mining/forge"
	"github.com/bingranl/task-mining/harness"
	"github.com/bingranl/task-mining/internal/cli"
	"github.com/bingranl/task-mining/sample"
	"github.com/bingranl/task-mining/store"
)

var extractAll bool

var extractCmd = &cobra.Command{
	Use:   "extract <owner>/<name>",
	Short: "Classify mined transitions and stage verification samples",
	Long: `Extract classifies each recorded transition, then for every
dependency-update transition fetches the changed build file at the bad and
good commits and stages a sample directory under the repository's results
directory. Samples staged here have no check yet; a check must be placed
under the sample's verification/ directory before "taskmine verify" will
pick it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "Re-extract transitions that already have a category")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cli.DefaultOutput()

	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dir := repoDir(owner, name)
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

	matcher := extract.NewMatcher(cfg.BuildFilePatterns)
	classifier := &classify.PathClassifier{IsBuildFile: matcher.Match}
	extractor := &extract.Extractor{Client: client, Matcher: matcher, Logger: logger}
	samplesDir := filepath.Join(dir, "samples")

	var staged, dropped, unverifiable, failed int
	for _, t := range st.All() {
		if t.Unverifiable {
			continue
		}
		key := t.Key()

		if t.Category == "" || extractAll {
			cat, err := classifier.Classify(ctx, t, t.FilesChanged)
			if err != nil {
				logger.Warn("classification failed", "key", key, "error", err)
				cat = classify.CategoryUnknown
			}
			if err := st.SetCategory(key, string(cat)); err != nil {
				return fmt.Errorf("recording category for %s: %w", key, err)
			}
			t.Category = string(cat)
		}
		if t.Category == string(classify.CategoryOther) {
			dropped++
			continue
		}

		pair, err := extractor.Extract(ctx, t)
		switch {
		case errors.Is(err, extract.ErrNoBuildFile):
			logger.Debug("no build file in transition", "key", key)
			dropped++
			continue
		case errors.Is(err, extract.ErrContentUnavailable):
			logger.Warn("artifact content gone, marking unverifiable", "key", key)
			if err := st.MarkUnverifiable(key); err != nil {
				return fmt.Errorf("marking %s unverifiable: %w", key, err)
			}
			unverifiable++
			continue
		case err != nil:
			logger.Warn("extraction failed", "key", key, "error", err)
			failed++
			continue
		}

		if dryRun {
			out.Printf("Would stage %s (%s)\n", sample.Key(t.ChangeReqID, t.BadSHA), pair.Path)
			staged++
			continue
		}

		// Checks are synthesized out of band; stage with an empty one.
		s := sample.FromPair(pair, sample.BuildTask(pair), harness.CheckSource{})
		sampleDir, err := s.Write(samplesDir)
		if err != nil {
			return fmt.Errorf("staging sample %s: %w", s.Key, err)
		}
		logger.Info("staged sample", "dir", sampleDir, "artifact", pair.Path)
		staged++
	}

	out.Printf("Staged %d samples under %s\n", staged, samplesDir)
	out.Printf("Dropped %d non-build-file transitions, %d unverifiable, %d failed\n",
		dropped, unverifiable, failed)
	if failed > 0 {
		out.Warn("Some extractions failed; re-run to retry them")
	}
	return nil
}
