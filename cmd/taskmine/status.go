package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bingranl/task-mining/harness"
	"github.com/bingranl/task-mining/internal/cli"
	"github.com/bingranl/task-mining/sample"
	"github.com/bingranl/task-mining/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <owner>/<name>",
	Short: "Show mining and verification progress for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cli.DefaultOutput()

	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	st, err := store.Open(resolveStorePath(owner, name))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	counts := st.Stats()
	out.Printf("Repository:   %s/%s\n", owner, name)
	out.Printf("Cursor:       change request #%d\n", counts.Cursor)
	out.Printf("Transitions:  %d (%d unverifiable)\n", counts.Transitions, counts.Unverifiable)

	byCategory := map[string]int{}
	for _, t := range st.All() {
		cat := t.Category
		if cat == "" {
			cat = "unclassified"
		}
		byCategory[cat]++
	}
	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		out.Printf("  %-18s %d\n", c, byCategory[c])
	}

	samplesDir := filepath.Join(repoDir(owner, name), "samples")
	dirs, err := sample.FindSamples(samplesDir)
	if err != nil {
		return fmt.Errorf("scanning samples: %w", err)
	}
	out.Printf("Samples:      %d complete under %s\n", len(dirs), samplesDir)

	var s harness.Summary
	var verified int
	for _, d := range dirs {
		outcome, err := readResult(filepath.Join(d, "verification_result.json"))
		if err != nil {
			continue
		}
		verified++
		s.Add(outcome.Outcome)
	}
	out.Printf("Verified:     %d (proven %d, disproven %d, inconclusive %d, harness errors %d)\n",
		verified, s.Proven, s.Disproven, s.Inconclusive, s.HarnessError)
	return nil
}

func readResult(path string) (*harness.VerificationOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var outcome harness.VerificationOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}
