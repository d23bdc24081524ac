// Command taskmine mines self-correction pairs from merged change requests
// and proves claimed fixes by differential verification.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bingranl/task-mining/miner"
)

var (
	configPath string
	resultsDir string
	storePath  string
	token      string
	verbosity  int
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "taskmine",
	Short: "Mine and verify build-fix pairs from change-request history",
	Long: `Taskmine walks merged change requests looking for commits whose
checks failed followed by commits whose checks passed, records each
failure-then-fix pair, extracts the build-definition file versions the fix
touched, and proves claimed fixes by running a generated check that must
fail on the bad version and pass on the good one.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".taskmine.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&resultsDir, "results", "results", "Results root directory")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to mining store (default: <results>/<owner>_<name>/mining.json)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default: GITHUB_TOKEN env)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without writing")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// splitRepo parses an "owner/name" argument.
func splitRepo(arg string) (owner, name string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/name format, got %q", arg)
	}
	return parts[0], parts[1], nil
}

// repoDir returns the per-repository results directory.
func repoDir(owner, name string) string {
	return filepath.Join(resultsDir, owner+"_"+name)
}

// resolveStorePath returns the mining store path for a repository.
func resolveStorePath(owner, name string) string {
	if storePath != "" {
		return storePath
	}
	return filepath.Join(repoDir(owner, name), "mining.json")
}

// resolveToken returns the bearer credential from the flag or environment.
func resolveToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("GITHUB_TOKEN")
}

func logLevel() slog.Level {
	switch verbosity {
	case 0:
		return slog.LevelInfo
	case 1:
		return slog.LevelDebug
	case 2:
		return miner.LevelTrace
	default:
		return miner.LevelDump
	}
}

// newLogger creates a structured logger writing to stderr.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
}

// newFileLogger creates a logger that writes to both stderr and a
// timestamped log file under <dir>/logs/ so runs can be revisited later.
// Returns the logger and a cleanup function to close the file.
func newFileLogger(dir string) (*slog.Logger, func()) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return newLogger(), func() {}
	}

	logFile := filepath.Join(logDir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return newLogger(), func() {}
	}

	w := io.MultiWriter(os.Stderr, f)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel()}))
	return logger, func() { f.Close() }
}
