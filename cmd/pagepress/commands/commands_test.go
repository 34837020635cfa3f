package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepress/pagepress/internal/config"
	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/progress"
)

type cliEnv struct {
	dir        string
	configPath string
	contentDir string
	outputDir  string
	remote     string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "pagepress.yaml"),
		contentDir: filepath.Join(dir, "content"),
		outputDir:  filepath.Join(dir, "public"),
		remote:     filepath.Join(dir, "remote.git"),
	}
	_, err := git.PlainInit(env.remote, true)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(env.contentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.contentDir, "hello.md"),
		[]byte("---\ntitle: Hello\ndate: 2024-03-01\ntags: [intro]\n---\nFirst *post*.\n"), 0o600))

	cfg := strings.Join([]string{
		`version: "1"`,
		"paths:",
		"  data_dir: " + filepath.Join(dir, "data"),
		"  output_dir: " + env.outputDir,
		"  themes_dir: " + filepath.Join(dir, "themes"),
		"content:",
		"  driver: files",
		"  dir: " + env.contentDir,
		"publish:",
		"  remote_url: " + env.remote,
		"  branch: main",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

func (env *cliEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("pagepress"), kong.Exit(func(int) { t.Fatalf("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(append([]string{"-c", env.configPath}, args...))
	require.NoError(t, err)
	return ctx.Run(&Global{Logger: slog.Default()}, cli)
}

func TestBuildAndPublishCommands(t *testing.T) {
	env := newCLIEnv(t)

	require.NoError(t, env.run(t, "build"))
	assert.FileExists(t, filepath.Join(env.outputDir, "index.html"))
	assert.FileExists(t, filepath.Join(env.outputDir, "posts", "hello.html"))
	reports, err := os.ReadDir(filepath.Join(env.dir, "data", "reports"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	require.NoError(t, env.run(t, "publish", "--skip-build"))
	remote, err := git.PlainOpen(env.remote)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	commit, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	_, err = commit.File("posts/hello.html")
	assert.NoError(t, err)

	require.NoError(t, env.run(t, "publish"))
	ref2, err := remote.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	assert.Equal(t, ref.Hash(), ref2.Hash(), "rebuilding unchanged content must not create a commit")
}

func TestSettingsCommands(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, env.run(t, "settings", "set", "site", `{"name":"CLI Site","feed":{"mode":"full"}}`))
	require.NoError(t, env.run(t, "settings", "get", "site"))
	assert.FileExists(t, filepath.Join(env.contentDir, "settings.yaml"))

	require.NoError(t, env.run(t, "build"))
	index, err := os.ReadFile(filepath.Join(env.outputDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "CLI Site")
	assert.FileExists(t, filepath.Join(env.outputDir, "rss.xml"))

	err = env.run(t, "settings", "set", "site", "{not json")
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
}

func TestImportRequiresSQLite(t *testing.T) {
	env := newCLIEnv(t)
	err := env.run(t, "import", env.contentDir)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestThemesCommand(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, env.run(t, "themes"))

	broken := filepath.Join(env.dir, "themes", "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "config.yaml"), []byte("pages: [[["), 0o600))
	err := env.run(t, "themes")
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
}

func TestScheduleRequiresCron(t *testing.T) {
	env := newCLIEnv(t)
	err := env.run(t, "schedule")
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"themes", "default", "pages", "home"}, splitPath("themes/default/pages/home"))
	assert.Equal(t, []string{"site"}, splitPath(" site/ "))
	assert.Empty(t, splitPath("/"))
}

func TestWatchDirsSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ThemesDir = filepath.Join(dir, "missing")
	cfg.Content.Driver = config.ContentFiles
	cfg.Content.Dir = dir
	assert.Equal(t, []string{dir}, watchDirs(cfg))
	assert.Contains(t, watchIgnored(cfg), filepath.Clean(cfg.Paths.OutputDir)+"_stage")
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "[build] rendering 2/4 (50%) posts/a.html",
		formatProgress("build", progress.Snapshot{Phase: "rendering", Current: 2, Total: 4, Message: "posts/a.html"}))
	assert.Equal(t, "[publish] publishing fetching main",
		formatProgress("publish", progress.Snapshot{Phase: "publishing", Message: "fetching main"}))
}

func TestPollProgressPrintsFinalState(t *testing.T) {
	var buf strings.Builder
	tr := progress.NewTracker("idle")
	stop := pollProgress(context.Background(), &buf, "build", tr.Snapshot)
	tr.SetPhase("succeeded", "done")
	stop()
	assert.Contains(t, buf.String(), "[build] succeeded done")
}
