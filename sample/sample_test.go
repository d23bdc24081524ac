package sample

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bingranl/task-mining/extract"
	"github.com/bingranl/task-mining/harness"
	"github.com/bingranl/task-mining/store"
)

func testPair() *extract.Pair {
	return &extract.Pair{
		Transition: store.Transition{
			ChangeReqID:  1913,
			ChangeReqURL: "https://example.com/pull/1913",
			BadSHA:       "149a345deadbeefcafe0123456789abcdef01234",
			BadMessage:   "bump agp",
			GoodSHA:      "f00dcafe0123456789abcdef0123456789abcdef",
			GoodMessage:  "fix agp bump",
		},
		Path: "app/build.gradle",
		Bad:  extract.ArtifactVersion{Path: "app/build.gradle", SHA: "149a345", Content: []byte("old")},
		Good: extract.ArtifactVersion{Path: "app/build.gradle", SHA: "f00dcaf", Content: []byte("new")},
		Diff: "-old\n+new",
	}
}

func TestKey(t *testing.T) {
	if got := Key(1913, "149a345deadbeef"); got != "1913_149a345" {
		t.Fatalf("Key = %q", got)
	}
	// Short hashes pass through untruncated.
	if got := Key(7, "abc"); got != "7_abc" {
		t.Fatalf("Key = %q", got)
	}
}

func TestBuildTask(t *testing.T) {
	task := BuildTask(testPair())
	for _, want := range []string{
		"1913_149a345",
		"https://example.com/pull/1913",
		"app/build.gradle",
		"bump agp",
		"fix agp bump",
		"+new",
	} {
		if !strings.Contains(task, want) {
			t.Errorf("task missing %q:\n%s", want, task)
		}
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	p := testPair()
	check := harness.CheckSource{
		FileName:   "BuildScriptTest.java",
		Source:     "class BuildScriptTest {}",
		TargetPath: "build.gradle",
	}

	s := FromPair(p, BuildTask(p), check)
	dir, err := s.Write(root)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(dir) != "1913_149a345" {
		t.Fatalf("sample dir %q", dir)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Key != "1913_149a345" {
		t.Fatalf("Key = %q", loaded.Key)
	}
	if loaded.ArtifactName != "build.gradle" {
		t.Fatalf("ArtifactName = %q", loaded.ArtifactName)
	}
	if string(loaded.Bad) != "old" || string(loaded.Good) != "new" {
		t.Fatalf("artifacts: %q / %q", loaded.Bad, loaded.Good)
	}
	if loaded.Check.FileName != "BuildScriptTest.java" || loaded.Check.Source != "class BuildScriptTest {}" {
		t.Fatalf("check: %+v", loaded.Check)
	}

	bad, good := loaded.ArtifactVersions()
	if string(bad.Content) != "old" || string(good.Content) != "new" {
		t.Fatal("ArtifactVersions lost content")
	}
}

func TestWriteWithoutCheckStaysIncomplete(t *testing.T) {
	root := t.TempDir()
	p := testPair()

	s := FromPair(p, BuildTask(p), harness.CheckSource{})
	dir, err := s.Write(root)
	if err != nil {
		t.Fatal(err)
	}

	// The verification directory exists but holds nothing yet.
	entries, err := os.ReadDir(filepath.Join(dir, "verification"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty verification dir, got %d entries", len(entries))
	}

	dirs, err := FindSamples(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Fatalf("checkless sample must not be findable, got %v", dirs)
	}
}

// staticSynthesizer returns a fixed check regardless of inputs.
type staticSynthesizer struct {
	check harness.CheckSource
	err   error

	gotTask string
	gotBad  []byte
	gotGood []byte
}

func (s *staticSynthesizer) Synthesize(_ context.Context, task string, bad, good []byte) (harness.CheckSource, error) {
	s.gotTask = task
	s.gotBad = bad
	s.gotGood = good
	return s.check, s.err
}

func TestAttachCheckCompletesSample(t *testing.T) {
	root := t.TempDir()
	p := testPair()
	s := FromPair(p, BuildTask(p), harness.CheckSource{})
	dir, err := s.Write(root)
	if err != nil {
		t.Fatal(err)
	}

	syn := &staticSynthesizer{check: harness.CheckSource{FileName: "T.java", Source: "class T {}"}}
	if err := AttachCheck(context.Background(), dir, syn); err != nil {
		t.Fatalf("AttachCheck: %v", err)
	}

	// The synthesizer sees the staged task and both artifact versions.
	if !strings.Contains(syn.gotTask, "1913_149a345") {
		t.Errorf("synthesizer got task %q", syn.gotTask)
	}
	if string(syn.gotBad) != "old" || string(syn.gotGood) != "new" {
		t.Errorf("synthesizer got artifacts %q / %q", syn.gotBad, syn.gotGood)
	}

	dirs, err := FindSamples(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != dir {
		t.Fatalf("sample not discoverable after AttachCheck: %v", dirs)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Check.FileName != "T.java" || loaded.Check.Source != "class T {}" {
		t.Fatalf("check not attached: %+v", loaded.Check)
	}
}

func TestAttachCheckRejectsEmptyCheck(t *testing.T) {
	root := t.TempDir()
	p := testPair()
	s := FromPair(p, BuildTask(p), harness.CheckSource{})
	dir, err := s.Write(root)
	if err != nil {
		t.Fatal(err)
	}

	if err := AttachCheck(context.Background(), dir, &staticSynthesizer{}); err == nil {
		t.Fatal("expected error for empty check source")
	}
	dirs, err := FindSamples(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Fatalf("sample must stay incomplete, got %v", dirs)
	}
}

func TestFindSamples(t *testing.T) {
	root := t.TempDir()
	p := testPair()
	check := harness.CheckSource{FileName: "T.java", Source: "class T {}"}

	complete := FromPair(p, BuildTask(p), check)
	completeDir, err := complete.Write(root)
	if err != nil {
		t.Fatal(err)
	}

	p2 := testPair()
	p2.Transition.ChangeReqID = 2000
	incomplete := FromPair(p2, BuildTask(p2), harness.CheckSource{})
	if _, err := incomplete.Write(root); err != nil {
		t.Fatal(err)
	}

	// Stray files at the root are ignored.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dirs, err := FindSamples(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != completeDir {
		t.Fatalf("FindSamples = %v, want [%s]", dirs, completeDir)
	}
}

func TestFindSamplesMissingRoot(t *testing.T) {
	dirs, err := FindSamples(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if dirs != nil {
		t.Fatalf("expected nil, got %v", dirs)
	}
}

func TestLoadCheckTargetsArtifact(t *testing.T) {
	// A synthesized check is bound to the artifact it was generated
	// against; Load restores that binding from the on-disk layout.
	root := t.TempDir()
	p := testPair()
	s := FromPair(p, BuildTask(p), harness.CheckSource{FileName: "T.java", Source: "class T {}"})
	dir, err := s.Write(root)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Check.TargetPath != "build.gradle" {
		t.Fatalf("TargetPath = %q", loaded.Check.TargetPath)
	}
}
