// Package hosting manages the mirror repositories on the hosting
// provider: checking they exist, creating them and keeping their
// metadata current.
package hosting

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v48/github"
	"golang.org/x/oauth2"

	"github.com/emacs-straight/gnu-elpa-mirror/internal/lock"
)

// Host is the hosting provider side of the mirror. Implementations
// must be safe for concurrent use.
type Host interface {
	// Exists reports whether the named repository exists in the org.
	Exists(ctx context.Context, name string) (bool, error)
	// Create creates the named repository with issues, wiki and
	// projects disabled and no initial commit.
	Create(ctx context.Context, name, description, homepage string) error
	// SetDescription replaces the repository description.
	SetDescription(ctx context.Context, name, description string) error
	// SetDefaultBranch sets the repository default branch.
	SetDefaultBranch(ctx context.Context, name, branch string) error
}

// GitHub implements Host for a GitHub organisation.
type GitHub struct {
	org    string
	client *github.Client
	log    *slog.Logger

	mu    lock.Mutex
	repos map[string]bool
}

// NewGitHub creates a Host for the given org authenticated with an
// access token.
func NewGitHub(ctx context.Context, org, token string, log *slog.Logger) *GitHub {
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &GitHub{
		org:    org,
		client: github.NewClient(httpClient),
		log:    log,
	}
}

// Exists reports whether the named repository exists. The org's
// repositories are listed once and cached, one API page per hundred
// repositories instead of one request per package.
func (g *GitHub) Exists(ctx context.Context, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repos == nil {
		repos, err := g.listRepos(ctx)
		if err != nil {
			return false, fmt.Errorf("unable to list repositories org:%s err:%w", g.org, err)
		}
		g.repos = repos
	}
	return g.repos[name], nil
}

func (g *GitHub) listRepos(ctx context.Context) (map[string]bool, error) {
	repos := map[string]bool{}
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := g.client.Repositories.ListByOrg(ctx, g.org, opts)
		if err != nil {
			return nil, err
		}
		for _, repo := range page {
			repos[repo.GetName()] = true
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	g.log.Debug("listed org repositories", "org", g.org, "count", len(repos))
	return repos, nil
}

func (g *GitHub) Create(ctx context.Context, name, description, homepage string) error {
	repo := &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Homepage:    github.String(homepage),
		HasIssues:   github.Bool(false),
		HasWiki:     github.Bool(false),
		HasProjects: github.Bool(false),
		AutoInit:    github.Bool(false),
	}
	if _, _, err := g.client.Repositories.Create(ctx, g.org, repo); err != nil {
		return fmt.Errorf("unable to create repository %s/%s err:%w", g.org, name, err)
	}

	g.mu.Lock()
	if g.repos != nil {
		g.repos[name] = true
	}
	g.mu.Unlock()

	g.log.Info("created repository", "org", g.org, "repo", name)
	return nil
}

func (g *GitHub) SetDescription(ctx context.Context, name, description string) error {
	repo := &github.Repository{Description: github.String(description)}
	if _, _, err := g.client.Repositories.Edit(ctx, g.org, name, repo); err != nil {
		return fmt.Errorf("unable to update description of %s/%s err:%w", g.org, name, err)
	}
	return nil
}

func (g *GitHub) SetDefaultBranch(ctx context.Context, name, branch string) error {
	repo := &github.Repository{DefaultBranch: github.String(branch)}
	if _, _, err := g.client.Repositories.Edit(ctx, g.org, name, repo); err != nil {
		return fmt.Errorf("unable to set default branch of %s/%s err:%w", g.org, name, err)
	}
	return nil
}
