// Package extract resolves a mined transition to the two versions of the
// build-definition file its fix touched.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/bingranl/task-mining/forge"
	"github.com/bingranl/task-mining/store"
)

// ErrNoBuildFile indicates the transition touched no build-definition file.
// Such pairs are dropped, not forwarded to verification.
var ErrNoBuildFile = errors.New("no build-definition file changed")

// ErrContentUnavailable indicates a blob could not be fetched (history
// rewritten, force-push). The transition is marked unverifiable, not
// discarded.
var ErrContentUnavailable = errors.New("artifact content unavailable")

// DefaultBuildFilePatterns is the filename allowlist identifying
// build-definition files. Matched as path suffixes. The set is
// configuration, not a contract; callers may extend it.
var DefaultBuildFilePatterns = []string{
	"build.gradle",
	"build.gradle.kts",
	"settings.gradle",
	"settings.gradle.kts",
	"libs.versions.toml",
	"gradle.properties",
	"gradle-wrapper.properties",
}

// Matcher reports whether a path names a build-definition file.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a Matcher; empty patterns use the defaults.
func NewMatcher(patterns []string) *Matcher {
	if len(patterns) == 0 {
		patterns = DefaultBuildFilePatterns
	}
	return &Matcher{patterns: patterns}
}

// Match checks the path against the pattern set. Convention-based build
// logic directories (build-logic/, buildSrc/) count when they hold build
// sources.
func (m *Matcher) Match(p string) bool {
	lower := strings.ToLower(p)
	for _, pat := range m.patterns {
		if strings.HasSuffix(lower, pat) {
			return true
		}
	}
	if strings.Contains(p, "build-logic") || strings.Contains(lower, "buildsrc") {
		switch path.Ext(p) {
		case ".kt", ".kts", ".gradle":
			return true
		}
	}
	return false
}

// ArtifactVersion is one version of a build-definition file.
type ArtifactVersion struct {
	Path    string
	SHA     string
	Content []byte
}

// Pair binds the bad and good artifact versions to their transition.
type Pair struct {
	Transition store.Transition
	Path       string
	Bad        ArtifactVersion
	Good       ArtifactVersion
	Diff       string // unified diff of the artifact between the two commits
}

// ContentClient is the provider slice the extractor needs.
type ContentClient interface {
	ChangedFiles(ctx context.Context, sha string) ([]string, error)
	FileContent(ctx context.Context, filePath, ref string) ([]byte, error)
	CompareDiff(ctx context.Context, badSHA, goodSHA, filePath string) (string, error)
}

// Extractor fetches artifact pairs for transitions.
type Extractor struct {
	Client  ContentClient
	Matcher *Matcher     // nil = default patterns
	Logger  *slog.Logger // nil = slog.Default()
}

// Extract resolves the transition's artifact pair: confirms a
// build-definition file changed, then fetches its content at both commits.
// When several build files changed, the first in the change list is the
// primary artifact.
func (e *Extractor) Extract(ctx context.Context, t store.Transition) (*Pair, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matcher := e.Matcher
	if matcher == nil {
		matcher = NewMatcher(nil)
	}

	files := t.FilesChanged
	if len(files) == 0 {
		var err error
		files, err = e.Client.ChangedFiles(ctx, t.GoodSHA)
		if err != nil {
			if errors.Is(err, forge.ErrNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
			}
			return nil, fmt.Errorf("changed files: %w", err)
		}
	}

	buildFile := ""
	for _, f := range files {
		if matcher.Match(f) {
			buildFile = f
			break
		}
	}
	if buildFile == "" {
		return nil, ErrNoBuildFile
	}
	logger.Debug("extracting artifact pair", "key", t.Key(), "path", buildFile)

	bad, err := e.fetch(ctx, buildFile, t.BadSHA)
	if err != nil {
		return nil, err
	}
	good, err := e.fetch(ctx, buildFile, t.GoodSHA)
	if err != nil {
		return nil, err
	}

	diff, err := e.Client.CompareDiff(ctx, t.BadSHA, t.GoodSHA, buildFile)
	if err != nil {
		// The diff feeds task descriptions only; the pair stands without it.
		logger.Warn("compare diff unavailable", "key", t.Key(), "error", err)
		diff = ""
	}

	return &Pair{
		Transition: t,
		Path:       buildFile,
		Bad:        bad,
		Good:       good,
		Diff:       diff,
	}, nil
}

func (e *Extractor) fetch(ctx context.Context, filePath, sha string) (ArtifactVersion, error) {
	content, err := e.Client.FileContent(ctx, filePath, sha)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			return ArtifactVersion{}, fmt.Errorf("%s at %s: %w", filePath, sha, ErrContentUnavailable)
		}
		return ArtifactVersion{}, fmt.Errorf("fetch %s at %s: %w", filePath, sha, err)
	}
	return ArtifactVersion{Path: filePath, SHA: sha, Content: content}, nil
}
