// Package harness proves claimed fixes by differential verification: a
// generated check must fail against the bad artifact version and pass
// against the good one, executed as real build-tool runs in isolated
// disposable project directories.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bingranl/task-mining/extract"
)

// BuildFileProperty is the fixed execution-parameter key under which the
// artifact path is forwarded to the check process. Checks must read the
// artifact from this system property rather than discovering it, so the
// same source runs unmodified against both copies.
const BuildFileProperty = "verify.buildFile"

// CheckSource is generated check code, produced externally and treated as
// an opaque text blob.
type CheckSource struct {
	FileName   string // e.g. BuildScriptTest.java
	Source     string
	TargetPath string // artifact path the check was generated against
}

// Outcome classifies one differential verification.
type Outcome string

const (
	// OutcomeProven: the check failed on bad and passed on good.
	OutcomeProven Outcome = "proven"
	// OutcomeDisproven: the check does not discriminate bad from good,
	// or discriminates backwards.
	OutcomeDisproven Outcome = "disproven"
	// OutcomeInconclusive: a run timed out or failed for a reason
	// unrelated to the check's assertions.
	OutcomeInconclusive Outcome = "inconclusive"
	// OutcomeHarnessError: the subprocess could not be launched; a
	// harness misconfiguration, not a property of the artifact pair.
	OutcomeHarnessError Outcome = "harness_error"
)

// RunRecord captures one build-tool run for post-hoc audit.
type RunRecord struct {
	Stdout       string        `json:"stdout"`
	Stderr       string        `json:"stderr"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	ExitCode     int           `json:"exit_code"`
	Passed       bool          `json:"passed"`
	TimedOut     bool          `json:"timed_out,omitempty"`
	Canceled     bool          `json:"canceled,omitempty"`
	launchFailed bool
}

// VerificationOutcome is the immutable record of one (pair, check)
// verification. Output from both runs is retained on every outcome.
type VerificationOutcome struct {
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason"`
	BadRun  RunRecord `json:"bad_run"`
	GoodRun RunRecord `json:"good_run"`
}

// environmentSignatures match build-tool failures caused by the scaffold
// or the host environment rather than by the check's assertions.
var environmentSignatures = []*regexp.Regexp{
	regexp.MustCompile(`SDK location not found`),
	regexp.MustCompile(`ANDROID_HOME`),
	regexp.MustCompile(`Could not determine java version`),
	regexp.MustCompile(`Unsupported class file major version`),
	regexp.MustCompile(`Unable to start the daemon process`),
	regexp.MustCompile(`Could not create service of type`),
	regexp.MustCompile(`Plugin \[id: '[^']+'[^\]]*\] was not found`),
	regexp.MustCompile(`Could not resolve all files for configuration ':classpath'`),
	regexp.MustCompile(`Could not install Gradle distribution`),
}

// Harness runs differential verifications.
type Harness struct {
	Runner  BuildRunner   // nil = &GradleRunner{}
	Logger  *slog.Logger  // nil = slog.Default()
	Timeout time.Duration // per build-tool run; default 10m
}

func (h *Harness) runner() BuildRunner {
	if h.Runner != nil {
		return h.Runner
	}
	return &GradleRunner{}
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Harness) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 10 * time.Minute
}

// Verify runs the check against isolated copies of the bad and the good
// artifact and classifies the result. Bad runs first, for reproducibility;
// classification does not depend on run order beyond the labels.
// No network access is involved: both runs execute over already-fetched
// artifact bytes.
func (h *Harness) Verify(ctx context.Context, bad, good extract.ArtifactVersion, check CheckSource) *VerificationOutcome {
	out := &VerificationOutcome{}

	out.BadRun = h.runOne(ctx, bad, check)
	if out.BadRun.launchFailed {
		out.Outcome = OutcomeHarnessError
		out.Reason = "build tool could not be launched: " + out.BadRun.Error
		return out
	}

	out.GoodRun = h.runOne(ctx, good, check)
	if out.GoodRun.launchFailed {
		out.Outcome = OutcomeHarnessError
		out.Reason = "build tool could not be launched: " + out.GoodRun.Error
		return out
	}

	out.Outcome, out.Reason = classify(out.BadRun, out.GoodRun)
	h.logger().Info("verification complete",
		"outcome", out.Outcome,
		"reason", out.Reason,
		"badExit", out.BadRun.ExitCode,
		"goodExit", out.GoodRun.ExitCode,
	)
	return out
}

// runOne materializes a disposable project directory for one artifact
// version, executes the check in it under the run timeout, and tears the
// directory down on every exit path.
func (h *Harness) runOne(ctx context.Context, artifact extract.ArtifactVersion, check CheckSource) RunRecord {
	var rec RunRecord

	dir, err := os.MkdirTemp("", "taskmine-verify-")
	if err != nil {
		rec.launchFailed = true
		rec.Error = err.Error()
		return rec
	}
	defer os.RemoveAll(dir)

	artifactPath, err := materialize(dir, artifact, check)
	if err != nil {
		rec.launchFailed = true
		rec.Error = err.Error()
		return rec
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	args := []string{
		"--no-daemon",
		"test",
		fmt.Sprintf("-D%s=%s", BuildFileProperty, artifactPath),
	}
	h.logger().Debug("build tool run", "dir", dir, "sha", artifact.SHA, "args", args)

	start := time.Now()
	result, runErr := h.runner().Run(runCtx, args, dir)
	rec.Duration = time.Since(start)

	if result != nil {
		rec.Stdout = result.Stdout
		rec.Stderr = result.Stderr
		rec.ExitCode = result.ExitCode
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	// Any context-driven kill ends the run without an assertion verdict:
	// the deadline marks a timeout, everything else is caller cancellation.
	if err := runCtx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			rec.TimedOut = true
		} else {
			rec.Canceled = true
		}
		return rec
	}
	if result == nil {
		rec.launchFailed = true
		return rec
	}

	rec.Passed = runErr == nil && result.ExitCode == 0
	return rec
}

// materialize writes the disposable project: the artifact under its own
// file name, the minimal scaffold the build tool requires to treat the
// directory as a standalone project, and the check in the test-source
// location. Each call gets a private directory; no caches are shared
// between the two runs of a verification.
func materialize(dir string, artifact extract.ArtifactVersion, check CheckSource) (string, error) {
	artifactPath := filepath.Join(dir, filepath.Base(artifact.Path))
	if err := os.WriteFile(artifactPath, artifact.Content, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	// Project-identity declaration only; no build logic of its own.
	settings := "rootProject.name = \"verify-sandbox\"\n"
	if err := os.WriteFile(filepath.Join(dir, "settings.gradle.kts"), []byte(settings), 0644); err != nil {
		return "", fmt.Errorf("write scaffold: %w", err)
	}

	testDir := filepath.Join(dir, "src", "test", "java")
	if err := os.MkdirAll(testDir, 0755); err != nil {
		return "", fmt.Errorf("create test dir: %w", err)
	}
	name := check.FileName
	if name == "" {
		name = "BuildScriptTest.java"
	}
	if err := os.WriteFile(filepath.Join(testDir, name), []byte(check.Source), 0644); err != nil {
		return "", fmt.Errorf("write check: %w", err)
	}

	return artifactPath, nil
}

// classify maps the two run records to an outcome. A check that passes on
// the bad artifact is never fixed up; it is disproven and excluded. A
// check that fails on both is disproven, not inconclusive: the
// discriminating property is unmet.
func classify(bad, good RunRecord) (Outcome, string) {
	switch {
	case bad.Canceled || good.Canceled:
		return OutcomeInconclusive, "run canceled before completion"
	case bad.TimedOut && good.TimedOut:
		return OutcomeInconclusive, "both runs timed out"
	case bad.TimedOut:
		return OutcomeInconclusive, "bad run timed out"
	case good.TimedOut:
		return OutcomeInconclusive, "good run timed out"
	}

	if sig := environmentFailure(bad); sig != "" {
		return OutcomeInconclusive, "bad run failed on environment: " + sig
	}
	if sig := environmentFailure(good); sig != "" {
		return OutcomeInconclusive, "good run failed on environment: " + sig
	}

	switch {
	case !bad.Passed && good.Passed:
		return OutcomeProven, "check fails on bad and passes on good"
	case bad.Passed && good.Passed:
		return OutcomeDisproven, "check passes on both versions"
	case !bad.Passed && !good.Passed:
		return OutcomeDisproven, "check fails on both versions"
	default:
		return OutcomeDisproven, "check discriminates backwards"
	}
}

// environmentFailure returns the matched signature when a failed run's
// output indicates a scaffold or environment problem rather than an
// assertion failure.
func environmentFailure(rec RunRecord) string {
	if rec.Passed {
		return ""
	}
	combined := rec.Stdout + "\n" + rec.Stderr
	for _, sig := range environmentSignatures {
		if m := sig.FindString(combined); m != "" {
			return m
		}
	}
	return ""
}
