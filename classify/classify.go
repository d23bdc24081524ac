// Package classify annotates mined transitions with a category. The chain
// is advisory: classification never gates mining or verification.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bingranl/task-mining/store"
)

// Category is a classifier verdict for a transition.
type Category string

const (
	CategoryDependencyUpdate Category = "dependency_update"
	CategoryOther            Category = "other"
	CategoryUnknown          Category = "unknown"
)

// Classifier labels one transition given the files its fix touched.
type Classifier interface {
	Classify(ctx context.Context, t store.Transition, files []string) (Category, error)
}

// PathClassifier labels a transition by matching changed paths against a
// build-definition predicate. Heuristic first stage of the chain.
type PathClassifier struct {
	// IsBuildFile reports whether a path is a build-definition file.
	IsBuildFile func(path string) bool
}

// Classify returns dependency_update when any changed path is a
// build-definition file, other when none is, and unknown when the file
// list is absent.
func (c *PathClassifier) Classify(_ context.Context, _ store.Transition, files []string) (Category, error) {
	if len(files) == 0 {
		return CategoryUnknown, nil
	}
	for _, f := range files {
		if c.IsBuildFile(f) {
			return CategoryDependencyUpdate, nil
		}
	}
	return CategoryOther, nil
}

// QueryFn is the signature for one-shot LLM queries. The language model
// backend is supplied by the caller; this package only shapes the prompt
// and parses the verdict.
type QueryFn func(ctx context.Context, prompt string) (string, error)

// DiffFn fetches the fix commit's diff for inclusion in the prompt.
type DiffFn func(ctx context.Context, badSHA, goodSHA string) (string, error)

// maxDiffChars bounds the diff snippet sent to the model.
const maxDiffChars = 10000

// LLMClassifier asks a language model whether the fix is purely a
// dependency update. Second stage of the chain.
type LLMClassifier struct {
	Query  QueryFn
	Diff   DiffFn       // optional; nil = classify from the message alone
	Logger *slog.Logger // nil = slog.Default()
}

// Classify builds a yes/no prompt over the fix commit's message and diff
// and maps the model's answer to a Category.
func (c *LLMClassifier) Classify(ctx context.Context, t store.Transition, _ []string) (Category, error) {
	if c.Query == nil {
		return CategoryUnknown, fmt.Errorf("llm classifier: Query is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	diff := ""
	if c.Diff != nil {
		var err error
		diff, err = c.Diff(ctx, t.BadSHA, t.GoodSHA)
		if err != nil {
			logger.Warn("diff unavailable for classification", "key", t.Key(), "error", err)
		}
		if len(diff) > maxDiffChars {
			diff = diff[:maxDiffChars]
		}
	}

	prompt := buildPrompt(t.GoodMessage, diff)
	logger.Debug("classifying transition", "key", t.Key(), "promptChars", len(prompt))

	answer, err := c.Query(ctx, prompt)
	if err != nil {
		return CategoryUnknown, fmt.Errorf("classifier query: %w", err)
	}
	logger.Debug("classifier verdict", "key", t.Key(), "answer", strings.TrimSpace(answer))

	return parseVerdict(answer), nil
}

// buildPrompt constructs the yes/no classification prompt.
func buildPrompt(message, diff string) string {
	var b strings.Builder
	b.WriteString("Analyze the following commit to determine if it is purely a dependency update (updating libraries, versions, etc.).\n\n")
	b.WriteString("Commit message:\n")
	b.WriteString(message)
	b.WriteString("\n\n")
	if diff != "" {
		b.WriteString("Diff snippet:\n```\n")
		b.WriteString(diff)
		b.WriteString("\n```\n\n")
	}
	b.WriteString("Is this a dependency update? Answer ONLY with \"YES\" or \"NO\".\n")
	return b.String()
}

// parseVerdict maps the model's free-text answer to a Category. Anything
// other than a clear yes or no is unknown.
func parseVerdict(answer string) Category {
	a := strings.ToUpper(strings.TrimSpace(answer))
	switch {
	case strings.Contains(a, "YES"):
		return CategoryDependencyUpdate
	case strings.Contains(a, "NO"):
		return CategoryOther
	default:
		return CategoryUnknown
	}
}

// Chain runs classifiers in order and returns the first decisive verdict.
// Unknown falls through to the next stage.
type Chain []Classifier

// Classify implements Classifier over the whole chain.
func (c Chain) Classify(ctx context.Context, t store.Transition, files []string) (Category, error) {
	for _, stage := range c {
		cat, err := stage.Classify(ctx, t, files)
		if err != nil {
			return CategoryUnknown, err
		}
		if cat != CategoryUnknown {
			return cat, nil
		}
	}
	return CategoryUnknown, nil
}
