package version

import "testing"

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Version != "unknown" {
		t.Logf("Version is: %s (expected 'unknown' or version set via ldflags)", Version)
	}
}

func TestBuildInfo(t *testing.T) {
	if BuildTime == "" {
		t.Error("BuildTime should be initialized")
	}
	if GitCommit == "" {
		t.Error("GitCommit should be initialized")
	}
}

func TestCommitMessageIsDeterministic(t *testing.T) {
	if CommitMessage() != CommitMessage() {
		t.Fatal("commit message must not vary between calls")
	}
	if want := "Update site by pagepress " + Version; CommitMessage() != want {
		t.Fatalf("got %q want %q", CommitMessage(), want)
	}
}
