package elpa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client fetches the archive index and package tarballs over HTTP.
type Client struct {
	archiveURL string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates an archive client for the given base URL
// (eg https://elpa.gnu.org/devel/).
func NewClient(archiveURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		archiveURL: archiveURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        log,
	}
}

// ArchiveURL returns the archive base URL of the client.
func (c *Client) ArchiveURL() string { return c.archiveURL }

// FetchIndex downloads and parses the archive-contents index.
func (c *Client) FetchIndex(ctx context.Context) ([]Package, error) {
	data, err := c.get(ctx, c.fileURL("archive-contents"))
	if err != nil {
		return nil, fmt.Errorf("unable to fetch archive index err:%w", err)
	}
	defer data.Close()

	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("unable to read archive index err:%w", err)
	}
	return ParseIndex(string(raw))
}

// DownloadTarballs fetches package tarballs that are not already present
// in dir. Tarballs on disk from prior runs double as a download cache,
// the artifact for a given name+version never changes.
func (c *Client) DownloadTarballs(ctx context.Context, dir string, pkgs []Package) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create tarball dir err:%w", err)
	}

	existing := map[string]bool{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("unable to list tarball dir err:%w", err)
	}
	for _, e := range entries {
		existing[e.Name()] = true
	}

	for _, pkg := range pkgs {
		if existing[pkg.TarballName()] {
			continue
		}
		url := pkg.TarballURL(c.archiveURL)
		c.log.Info("downloading tarball", "url", url)
		if err := c.download(ctx, url, filepath.Join(dir, pkg.TarballName())); err != nil {
			return fmt.Errorf("unable to download %q err:%w", pkg.TarballName(), err)
		}
	}
	return nil
}

// fileURL joins a file name onto the archive base URL.
func (c *Client) fileURL(name string) string {
	return strings.TrimRight(c.archiveURL, "/") + "/" + name
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// download writes the artifact through a temp file so an interrupted
// transfer never poisons the on-disk cache.
func (c *Client) download(ctx context.Context, url, dest string) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
