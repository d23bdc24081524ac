// Package sample lays out verification samples on disk: a task
// description, the bad and good artifact versions, and the check source,
// addressable by change-request id plus short bad-commit hash.
package sample

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bingranl/task-mining/extract"
	"github.com/bingranl/task-mining/harness"
)

// Synthesizer produces check source from a task description and the two
// artifact versions. Implementations are external (templates or a language
// model); the harness treats the output as an opaque text blob bound by
// one contract: the check reads the artifact path from the
// harness.BuildFileProperty execution parameter.
type Synthesizer interface {
	Synthesize(ctx context.Context, task string, bad, good []byte) (harness.CheckSource, error)
}

// Sample is one on-disk verification sample.
type Sample struct {
	Key          string
	Task         string
	ArtifactName string
	Bad          []byte
	Good         []byte
	Check        harness.CheckSource
}

// Key builds the stable sample key: change-request id + short bad hash.
func Key(crID int64, badSHA string) string {
	short := badSHA
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%d_%s", crID, short)
}

// FromPair binds an artifact pair, its task description, and a check into
// a Sample.
func FromPair(p *extract.Pair, task string, check harness.CheckSource) *Sample {
	return &Sample{
		Key:          Key(p.Transition.ChangeReqID, p.Transition.BadSHA),
		Task:         task,
		ArtifactName: filepath.Base(p.Path),
		Bad:          p.Bad.Content,
		Good:         p.Good.Content,
		Check:        check,
	}
}

// BuildTask renders the task description document for an artifact pair.
func BuildTask(p *extract.Pair) string {
	t := p.Transition
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Build fix %s\n\n", Key(t.ChangeReqID, t.BadSHA)))
	b.WriteString(fmt.Sprintf("Change request: %s\n\n", t.ChangeReqURL))
	b.WriteString(fmt.Sprintf("The build broke at commit `%s` (%s) and was fixed at commit `%s` (%s).\n\n",
		t.BadSHA, t.BadMessage, t.GoodSHA, t.GoodMessage))
	b.WriteString(fmt.Sprintf("Build file under test: `%s`\n", p.Path))
	if p.Diff != "" {
		b.WriteString("\n## Fix diff\n\n```diff\n")
		b.WriteString(p.Diff)
		b.WriteString("\n```\n")
	}
	return b.String()
}

// Write persists the sample under root/<key>/ and returns the sample
// directory.
func (s *Sample) Write(root string) (string, error) {
	dir := filepath.Join(root, s.Key)
	for _, sub := range []string{"original", "modified", "verification"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("create sample dir: %w", err)
		}
	}

	files := map[string][]byte{
		filepath.Join(dir, "task.md"):                  []byte(s.Task),
		filepath.Join(dir, "original", s.ArtifactName): s.Bad,
		filepath.Join(dir, "modified", s.ArtifactName): s.Good,
	}
	// A sample may be staged before its check is synthesized; verification/
	// stays empty until then and FindSamples skips the sample.
	if s.Check.Source != "" {
		checkName := s.Check.FileName
		if checkName == "" {
			checkName = "BuildScriptTest.java"
		}
		files[filepath.Join(dir, "verification", checkName)] = []byte(s.Check.Source)
	}

	for path, data := range files {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}
	return dir, nil
}

// AttachCheck runs the synthesizer over a staged sample directory and
// writes the produced check under verification/, completing the sample for
// discovery by FindSamples.
func AttachCheck(ctx context.Context, dir string, syn Synthesizer) error {
	task, err := os.ReadFile(filepath.Join(dir, "task.md"))
	if err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	_, bad, err := readOnly(filepath.Join(dir, "original"))
	if err != nil {
		return fmt.Errorf("read original artifact: %w", err)
	}
	_, good, err := readOnly(filepath.Join(dir, "modified"))
	if err != nil {
		return fmt.Errorf("read modified artifact: %w", err)
	}

	check, err := syn.Synthesize(ctx, string(task), bad, good)
	if err != nil {
		return fmt.Errorf("synthesize check: %w", err)
	}
	if check.Source == "" {
		return fmt.Errorf("synthesizer produced an empty check for %s", dir)
	}
	name := check.FileName
	if name == "" {
		name = "BuildScriptTest.java"
	}
	return os.WriteFile(filepath.Join(dir, "verification", name), []byte(check.Source), 0644)
}

// Load reads a sample directory written by Write.
func Load(dir string) (*Sample, error) {
	task, err := os.ReadFile(filepath.Join(dir, "task.md"))
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}

	artifactName, bad, err := readOnly(filepath.Join(dir, "original"))
	if err != nil {
		return nil, fmt.Errorf("read original artifact: %w", err)
	}
	_, good, err := readOnly(filepath.Join(dir, "modified"))
	if err != nil {
		return nil, fmt.Errorf("read modified artifact: %w", err)
	}
	checkName, checkSrc, err := readOnly(filepath.Join(dir, "verification"))
	if err != nil {
		return nil, fmt.Errorf("read check: %w", err)
	}

	return &Sample{
		Key:          filepath.Base(dir),
		Task:         string(task),
		ArtifactName: artifactName,
		Bad:          bad,
		Good:         good,
		Check: harness.CheckSource{
			FileName:   checkName,
			Source:     string(checkSrc),
			TargetPath: artifactName,
		},
	}, nil
}

// readOnly reads the single regular file expected in dir.
func readOnly(dir string) (string, []byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", nil, err
		}
		return e.Name(), data, nil
	}
	return "", nil, fmt.Errorf("no file in %s", dir)
}

// ArtifactVersions converts the sample back to the harness input shape.
func (s *Sample) ArtifactVersions() (bad, good extract.ArtifactVersion) {
	bad = extract.ArtifactVersion{Path: s.ArtifactName, Content: s.Bad}
	good = extract.ArtifactVersion{Path: s.ArtifactName, Content: s.Good}
	return bad, good
}

// FindSamples returns the directories under root that hold a complete
// sample: an original artifact, a modified artifact, and a check.
func FindSamples(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if hasFile(filepath.Join(dir, "original")) &&
			hasFile(filepath.Join(dir, "modified")) &&
			hasFile(filepath.Join(dir, "verification")) {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func hasFile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			return true
		}
	}
	return false
}
