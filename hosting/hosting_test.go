package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v48/github"
)

func newTestHost(t *testing.T, handler http.Handler) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	baseURL, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.BaseURL = baseURL

	return &GitHub{
		org:    "test-org",
		client: client,
		log:    slog.Default(),
	}
}

func TestExists_paginated_listing(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/test-org/repos", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/test-org/repos?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[{"name":"magit"},{"name":"dash"}]`)
		case "2":
			fmt.Fprint(w, `[{"name":"vimpulse"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	g := newTestHost(t, mux)

	for name, want := range map[string]bool{
		"magit":    true,
		"dash":     true,
		"vimpulse": true,
		"missing":  false,
	} {
		got, err := g.Exists(context.TODO(), name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Exists(%q) = %v, want %v", name, got, want)
		}
	}

	if listCalls != 2 {
		t.Errorf("expected 2 list requests, got %d", listCalls)
	}
}

func TestCreate(t *testing.T) {
	var got github.Repository
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/test-org/repos", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `[]`)
		case http.MethodPost:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if err := json.Unmarshal(body, &got); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"name":"magit"}`)
		}
	})

	g := newTestHost(t, mux)

	if err := g.Create(context.TODO(), "magit", "Mirror of magit", "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.GetName() != "magit" ||
		got.GetDescription() != "Mirror of magit" ||
		got.GetHomepage() != "https://example.com" {
		t.Errorf("unexpected create payload: %+v", got)
	}
	if got.GetHasIssues() || got.GetHasWiki() || got.GetHasProjects() || got.GetAutoInit() {
		t.Errorf("issues/wiki/projects/auto-init must be disabled: %+v", got)
	}

	// created repo must be visible without re-listing
	if _, err := g.Exists(context.TODO(), "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Create(context.TODO(), "magit", "Mirror of magit", "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exists, err := g.Exists(context.TODO(), "magit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("created repository missing from cache")
	}
}

func TestSetDescription_and_SetDefaultBranch(t *testing.T) {
	edits := map[string]*github.Repository{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/test-org/magit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		var repo github.Repository
		if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		edits[fmt.Sprint(len(edits))] = &repo
		fmt.Fprint(w, `{"name":"magit"}`)
	})

	g := newTestHost(t, mux)

	if err := g.SetDescription(context.TODO(), "magit", "current as of 2024-01-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetDefaultBranch(context.TODO(), "magit", "main"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if edits["0"].GetDescription() != "current as of 2024-01-01" {
		t.Errorf("unexpected description edit: %+v", edits["0"])
	}
	if edits["1"].GetDefaultBranch() != "main" {
		t.Errorf("unexpected default branch edit: %+v", edits["1"])
	}
}

func TestExists_listing_error(t *testing.T) {
	g := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if _, err := g.Exists(context.TODO(), "magit"); err == nil {
		t.Error("expected error from failed listing")
	}
}
