package elpa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestArchive(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchIndex(t *testing.T) {
	srv := newTestArchive(t, map[string]string{
		"/devel/archive-contents": `(1 (pkg . [(1 2) nil "d" tar nil]))`,
	})

	c := NewClient(srv.URL+"/devel/", nil)
	got, err := c.FetchIndex(context.TODO())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Package{{Name: "pkg", Version: "1.2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchIndex() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchIndex_http_error(t *testing.T) {
	srv := newTestArchive(t, nil)

	c := NewClient(srv.URL+"/devel/", nil)
	if _, err := c.FetchIndex(context.TODO()); err == nil {
		t.Error("expected error for missing index")
	}
}

func TestDownloadTarballs(t *testing.T) {
	srv := newTestArchive(t, map[string]string{
		"/devel/pkg-1.2.tar":   "tarball-content",
		"/devel/other-0.9.tar": "other-content",
	})

	dir := t.TempDir()
	c := NewClient(srv.URL+"/devel/", nil)
	pkgs := []Package{
		{Name: "pkg", Version: "1.2"},
		{Name: "other", Version: "0.9"},
	}

	if err := c.DownloadTarballs(context.TODO(), dir, pkgs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for file, want := range map[string]string{
		"pkg-1.2.tar":   "tarball-content",
		"other-0.9.tar": "other-content",
	} {
		got, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			t.Fatalf("tarball %q missing: %v", file, err)
		}
		if string(got) != want {
			t.Errorf("tarball %q content = %q, want %q", file, got, want)
		}
	}
}

func TestDownloadTarballs_skips_existing(t *testing.T) {
	// nothing served, the existing tarball must be used as-is
	srv := newTestArchive(t, nil)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pkg-1.2.tar"), []byte("cached"), 0644); err != nil {
		t.Fatalf("unable to write file: %v", err)
	}

	c := NewClient(srv.URL+"/devel/", nil)
	if err := c.DownloadTarballs(context.TODO(), dir, []Package{{Name: "pkg", Version: "1.2"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "pkg-1.2.tar"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "cached" {
		t.Errorf("cached tarball was overwritten: %q", got)
	}
}

func TestDownloadTarballs_missing_artifact(t *testing.T) {
	srv := newTestArchive(t, nil)

	c := NewClient(srv.URL+"/devel/", nil)
	err := c.DownloadTarballs(context.TODO(), t.TempDir(), []Package{{Name: "gone", Version: "1.0"}})
	if err == nil {
		t.Error("expected error for missing tarball")
	}
}
