package mirror

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emacs-straight/gnu-elpa-mirror/gitmodules"
	"github.com/emacs-straight/gnu-elpa-mirror/internal/utils"
)

const testMainBranch = "e2e-main"

var (
	testLog  = slog.Default()
	testENVs = []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_SYSTEM=/dev/null",
	}
)

func skipWithoutTools(t *testing.T) {
	t.Helper()
	for _, tool := range []string{"git", "tar"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s executable not found in PATH", tool)
		}
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func mustExec(t *testing.T, cwd string, command string, args ...string) string {
	t.Helper()
	out, err := utils.RunCommand(context.TODO(), testLog, testENVs, cwd, command, args...)
	if err != nil {
		t.Fatalf("command %s %s failed: %v", command, strings.Join(args, " "), err)
	}
	return out
}

func mustInitRepo(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("unable to create repo dir: %v", err)
	}
	mustExec(t, dir, "git", "init", "-q", "-b", testMainBranch)
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
			t.Fatalf("unable to write file: %v", err)
		}
	}
	mustExec(t, dir, "git", "add", "--all")
	mustExec(t, dir, "git",
		"-c", "user.name=e2e", "-c", "user.email=e2e@example.com",
		"commit", "-q", "-m", "init", "--no-gpg-sign")
}

// writeTarball builds a package tarball with the usual single
// name-version top directory.
func writeTarball(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for file, content := range files {
		hdr := &tar.Header{
			Name: topDir + "/" + file,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("unable to write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("unable to write tar content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("unable to close tar: %v", err)
	}
	return buf.Bytes()
}

// newTestMirror creates a Mirror pushing to bare repositories under
// hostedDir instead of the real hosting provider.
func newTestMirror(t *testing.T, conf Config, host *fakeHost, hostedDir string) *Mirror {
	t.Helper()
	if err := os.MkdirAll(hostedDir, 0755); err != nil {
		t.Fatalf("unable to create hosted dir: %v", err)
	}
	host.onCreate = func(name string) {
		mustExec(t, hostedDir, "git", "init", "-q", "--bare", name)
	}

	conf.Token = "s3cr3t-t0ken"
	conf.GitENVs = testENVs
	m, err := New(conf, host, testLog)
	if err != nil {
		t.Fatalf("unable to create mirror: %v", err)
	}
	m.pushRemote = func(repo string) string {
		return filepath.Join(hostedDir, repo)
	}
	return m
}

func Test_elpa_mirror_end_to_end(t *testing.T) {
	skipWithoutTools(t)
	ctx := testCtx(t)
	tempRoot := t.TempDir()

	tarball := writeTarball(t, "foo-1.2", map[string]string{
		"foo.el":              ";;; foo.el --- a package\n",
		".github/FUNDING.yml": "github: upstream\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/archive-contents":
			fmt.Fprint(w, `(1 (foo . [(1 2) nil "A package" tar nil]))`)
		case "/foo-1.2.tar":
			w.Write(tarball)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	host := newFakeHost()
	hostedDir := filepath.Join(tempRoot, "hosted")
	m := newTestMirror(t, Config{
		WorkDir: filepath.Join(tempRoot, "work"),
		ELPAURL: srv.URL + "/",
	}, host, hostedDir)

	opts := RunOptions{SkipEmacsmirror: true, SkipOrgMode: true}
	if err := m.Run(ctx, opts); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	hostedFoo := filepath.Join(hostedDir, "foo")
	if got := mustExec(t, hostedFoo, "git", "log", "-1", "--format=%s"); got != "Update foo" {
		t.Errorf("unexpected commit subject %q", got)
	}
	body := mustExec(t, hostedFoo, "git", "log", "-1", "--format=%B")
	for _, want := range []string{
		"Timestamp: ",
		"Sourced from foo version 1.2 on GNU ELPA Devel",
		"(see " + srv.URL + "/foo.html)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("commit message %q missing %q", body, want)
		}
	}

	if got := mustExec(t, hostedFoo, "git", "show", "HEAD:foo.el"); got != strings.TrimSpace(";;; foo.el --- a package") {
		t.Errorf("unexpected package content %q", got)
	}
	if got := mustExec(t, hostedFoo, "git", "show", "HEAD:.github/PULL_REQUEST_TEMPLATE.md"); got != strings.TrimSpace(prTemplateNote) {
		t.Errorf("unexpected pull request template %q", got)
	}
	if _, err := utils.RunCommand(ctx, testLog, testENVs, hostedFoo,
		"git", "cat-file", "-e", "HEAD:.github/FUNDING.yml"); err == nil {
		t.Error("upstream .github content leaked into the mirror")
	}

	hostedList := filepath.Join(hostedDir, mirrorListRepo)
	if got := mustExec(t, hostedList, "git", "log", "-1", "--format=%s"); got != "Update mirror list" {
		t.Errorf("unexpected mirror list subject %q", got)
	}
	if got := mustExec(t, hostedList, "git", "show", "HEAD:foo"); got != "" {
		t.Errorf("mirror list entry must be empty, got %q", got)
	}

	if !strings.Contains(host.descriptions["foo"], "current as of") {
		t.Errorf("unexpected description %q", host.descriptions["foo"])
	}
	wantBranch := mustExec(t, filepath.Join(tempRoot, "work", "repos", "foo"),
		"git", "symbolic-ref", "--short", "HEAD")
	if host.defaultBranches["foo"] != wantBranch {
		t.Errorf("default branch = %q, want %q", host.defaultBranches["foo"], wantBranch)
	}

	// a second run with identical upstream state must not create commits
	if err := m.Run(ctx, opts); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if got := mustExec(t, hostedFoo, "git", "rev-list", "--count", "HEAD"); got != "1" {
		t.Errorf("expected single commit after re-run, got %s", got)
	}
}

func Test_emacsmirror_end_to_end(t *testing.T) {
	skipWithoutTools(t)
	ctx := testCtx(t)
	tempRoot := t.TempDir()

	var manifest strings.Builder
	writeModule := func(name, url string) {
		fmt.Fprintf(&manifest, "[submodule %q]\n\tpath = %s\n\turl = %s\n", name, name, url)
	}
	writeModule("elpa", "https://git.savannah.gnu.org/git/emacs/elpa")
	writeModule("melpa", "https://github.com/melpa/melpa.git")
	for i := 0; i < 500; i++ {
		name := fmt.Sprintf("attic-%03d", i)
		writeModule(name, "git@github.com:emacsattic/"+name+".git")
	}
	for i := 0; i < 1000; i++ {
		name := fmt.Sprintf("mirror-%04d", i)
		writeModule(name, "https://github.com/emacsmirror/"+name+".git")
	}

	epkgsUpstream := filepath.Join(tempRoot, "epkgs-upstream")
	mustInitRepo(t, epkgsUpstream, map[string]string{".gitmodules": manifest.String()})
	epkgsCommit := mustExec(t, epkgsUpstream, "git", "rev-parse", "HEAD")

	host := newFakeHost()
	hostedDir := filepath.Join(tempRoot, "hosted")
	m := newTestMirror(t, Config{
		WorkDir:     filepath.Join(tempRoot, "work"),
		EpkgsRemote: epkgsUpstream,
	}, host, hostedDir)

	if err := m.Run(ctx, RunOptions{SkipELPA: true, SkipOrgMode: true}); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	hosted := filepath.Join(hostedDir, emacsmirrorRepo)
	attic := mustExec(t, hosted, "git", "show", "HEAD:attic")
	if got := len(strings.Split(attic, "\n")); got != 500 {
		t.Errorf("attic lists %d packages, want 500", got)
	}
	mirror := mustExec(t, hosted, "git", "show", "HEAD:mirror")
	if got := len(strings.Split(mirror, "\n")); got != 1000 {
		t.Errorf("mirror lists %d packages, want 1000", got)
	}
	if !strings.HasPrefix(attic, "attic-000\n") {
		t.Errorf("unexpected attic head %q", attic[:20])
	}

	body := mustExec(t, hosted, "git", "log", "-1", "--format=%B")
	if !strings.Contains(body, "Emacsmirror commit: "+epkgsCommit) {
		t.Errorf("commit message %q missing epkgs commit %s", body, epkgsCommit)
	}
	if host.descriptions[emacsmirrorRepo] != "Light-weight mirror of the Emacsmirror index" {
		t.Errorf("unexpected description %q", host.descriptions[emacsmirrorRepo])
	}
}

func Test_corrupt_manifest_aborts_run(t *testing.T) {
	skipWithoutTools(t)
	ctx := testCtx(t)
	tempRoot := t.TempDir()

	// a manifest that classifies cleanly but is far too small to be
	// the real package index
	manifest := "[submodule \"dash\"]\n" +
		"\tpath = dash\n" +
		"\turl = https://github.com/emacsmirror/dash.git\n"
	epkgsUpstream := filepath.Join(tempRoot, "epkgs-upstream")
	mustInitRepo(t, epkgsUpstream, map[string]string{".gitmodules": manifest})

	orgUpstream := filepath.Join(tempRoot, "org-upstream")
	mustInitRepo(t, orgUpstream, map[string]string{"org.el": ";;; org.el\n"})

	host := newFakeHost()
	hostedDir := filepath.Join(tempRoot, "hosted")
	m := newTestMirror(t, Config{
		WorkDir:       filepath.Join(tempRoot, "work"),
		EpkgsRemote:   epkgsUpstream,
		OrgModeRemote: orgUpstream,
	}, host, hostedDir)

	err := m.Run(ctx, RunOptions{SkipELPA: true})
	if !errors.Is(err, gitmodules.ErrInvalidManifest) {
		t.Fatalf("expected manifest error, got %v", err)
	}

	// the run must stop before touching the remaining sources
	if _, statErr := os.Stat(filepath.Join(hostedDir, orgModeRepo)); !os.IsNotExist(statErr) {
		t.Error("org-mode mirror created despite corrupt manifest")
	}
	if _, statErr := os.Stat(filepath.Join(hostedDir, emacsmirrorRepo)); !os.IsNotExist(statErr) {
		t.Error("emacsmirror mirror created despite corrupt manifest")
	}
}

func Test_orgmode_relay_end_to_end(t *testing.T) {
	skipWithoutTools(t)
	ctx := testCtx(t)
	tempRoot := t.TempDir()

	upstream := filepath.Join(tempRoot, "org-upstream")
	mustInitRepo(t, upstream, map[string]string{"org.el": ";;; org.el\n"})

	host := newFakeHost()
	hostedDir := filepath.Join(tempRoot, "hosted")
	m := newTestMirror(t, Config{
		WorkDir:       filepath.Join(tempRoot, "work"),
		OrgModeRemote: upstream,
	}, host, hostedDir)

	if err := m.Run(ctx, RunOptions{SkipELPA: true, SkipEmacsmirror: true}); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	upstreamHead := mustExec(t, upstream, "git", "rev-parse", "HEAD")
	hostedHead := mustExec(t, filepath.Join(hostedDir, orgModeRepo), "git", "rev-parse", testMainBranch)
	if upstreamHead != hostedHead {
		t.Errorf("hosted head %s does not match upstream %s", hostedHead, upstreamHead)
	}

	if host.defaultBranches[orgModeRepo] != testMainBranch {
		t.Errorf("default branch = %q, want %q", host.defaultBranches[orgModeRepo], testMainBranch)
	}
	if !strings.Contains(host.descriptions[orgModeRepo], "Mirror of org-mode from Savannah, current as of") {
		t.Errorf("unexpected description %q", host.descriptions[orgModeRepo])
	}

	// the relay clone must never grow a working tree
	if _, err := os.Stat(filepath.Join(tempRoot, "work", "repos", orgModeRepo, "org.el")); !os.IsNotExist(err) {
		t.Error("bare relay clone has a working tree")
	}
}
