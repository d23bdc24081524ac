package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bingranl/task-mining/config"
	"github.com/bingranl/task-mining/harness"
	"github.com/bingranl/task-mining/internal/cli"
	"github.com/bingranl/task-mining/sample"
)

var (
	verifyParallel int
	verifyOnly     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <owner>/<name>",
	Short: "Differentially verify staged samples",
	Long: `Verify runs each complete sample's check against the original
(bad) and modified (good) build file versions. A check proves its fix only
when it fails on the bad version and passes on the good one. Each sample's
full run records are written to verification_result.json inside the sample
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().IntVar(&verifyParallel, "parallel", 0, "Max concurrent verifications (default from config)")
	verifyCmd.Flags().StringVar(&verifyOnly, "sample", "", "Verify only the sample with this key")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	out := cli.DefaultOutput()

	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	parallel := cfg.Verify.MaxParallel
	if verifyParallel > 0 {
		parallel = verifyParallel
	}

	dir := repoDir(owner, name)
	logger, closeLog := newFileLogger(dir)
	defer closeLog()

	samplesDir := filepath.Join(dir, "samples")
	dirs, err := sample.FindSamples(samplesDir)
	if err != nil {
		return fmt.Errorf("scanning samples: %w", err)
	}
	if verifyOnly != "" {
		var filtered []string
		for _, d := range dirs {
			if filepath.Base(d) == verifyOnly {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("no complete sample named %q under %s", verifyOnly, samplesDir)
		}
		dirs = filtered
	}
	if len(dirs) == 0 {
		out.Warn("No complete samples to verify (checks missing?)")
		return nil
	}

	jobs := make([]harness.Job, 0, len(dirs))
	for _, d := range dirs {
		s, err := sample.Load(d)
		if err != nil {
			logger.Warn("skipping unloadable sample", "dir", d, "error", err)
			continue
		}
		bad, good := s.ArtifactVersions()
		jobs = append(jobs, harness.Job{Key: s.Key, Bad: bad, Good: good, Check: s.Check})
	}

	if dryRun {
		for _, j := range jobs {
			out.Printf("Would verify %s\n", j.Key)
		}
		return nil
	}

	h := &harness.Harness{
		Runner:  &harness.GradleRunner{Bin: cfg.Verify.GradleBin},
		Logger:  logger,
		Timeout: cfg.VerifyTimeout(),
	}

	out.Info(fmt.Sprintf("Verifying %d samples with parallelism %d", len(jobs), parallel))

	results, err := h.VerifyAll(cmd.Context(), jobs, parallel)
	if err != nil {
		return fmt.Errorf("verification interrupted: %w", err)
	}

	for _, r := range results {
		if r.Outcome == nil {
			continue
		}
		resultPath := filepath.Join(samplesDir, r.Key, "verification_result.json")
		if err := writeResult(resultPath, r.Outcome); err != nil {
			logger.Warn("could not persist result", "sample", r.Key, "error", err)
		}
		switch r.Outcome.Outcome {
		case harness.OutcomeProven:
			out.Success(fmt.Sprintf("%s: proven", r.Key))
		case harness.OutcomeDisproven:
			out.Error(fmt.Sprintf("%s: disproven (%s)", r.Key, r.Outcome.Reason))
		default:
			out.Warn(fmt.Sprintf("%s: %s (%s)", r.Key, r.Outcome.Outcome, r.Outcome.Reason))
		}
	}

	s := harness.Summarize(results)
	out.Printf("\nProven %d, disproven %d, inconclusive %d, harness errors %d\n",
		s.Proven, s.Disproven, s.Inconclusive, s.HarnessError)
	return nil
}

func writeResult(path string, outcome *harness.VerificationOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
