package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"diagramgen/internal/gateway/config"
)

var (
	ErrNotFound    = errors.New("github: repository not found")
	ErrRateLimited = errors.New("github: rate limited")
)

// RepositoryContext is the metadata the pipeline needs about one repository.
// It is produced once per (owner, repo, credential) and treated as read-only.
type RepositoryContext struct {
	DefaultBranch string
	FilePaths     []string
	Readme        string
}

// FileTree renders the file paths as one newline-separated block for prompts.
func (rc *RepositoryContext) FileTree() string {
	return strings.Join(rc.FilePaths, "\n")
}

// Provider fetches repository metadata. token may be empty for public repos.
type Provider interface {
	Fetch(ctx context.Context, owner, repo, token string) (*RepositoryContext, error)
}

// Client talks to the GitHub REST API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(cfg config.GitHubConfig) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
	}
}

func (c *Client) get(ctx context.Context, url, accept, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		resp.Body.Close()
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("github: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Fetch assembles the repository context: default branch (falls back to
// "main" when the repo lookup fails softly), the flat file listing of the
// branch tree, and the readme text.
func (c *Client) Fetch(ctx context.Context, owner, repo, token string) (*RepositoryContext, error) {
	branch := c.defaultBranch(ctx, owner, repo, token)

	paths, err := c.fileTree(ctx, owner, repo, branch, token)
	if err != nil {
		return nil, err
	}
	readme, err := c.readme(ctx, owner, repo, token)
	if err != nil {
		return nil, err
	}
	return &RepositoryContext{
		DefaultBranch: branch,
		FilePaths:     paths,
		Readme:        readme,
	}, nil
}

func (c *Client) defaultBranch(ctx context.Context, owner, repo, token string) string {
	resp, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo), "application/vnd.github+json", token)
	if err != nil {
		return "main"
	}
	defer resp.Body.Close()
	var out struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.DefaultBranch == "" {
		return "main"
	}
	return out.DefaultBranch
}

func (c *Client) fileTree(ctx context.Context, owner, repo, branch, token string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, repo, branch)
	resp, err := c.get(ctx, url, "application/vnd.github+json", token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("github: decode tree: %w", err)
	}
	paths := make([]string, 0, len(out.Tree))
	for _, entry := range out.Tree {
		if entry.Type != "blob" {
			continue
		}
		if !includePath(entry.Path) {
			continue
		}
		paths = append(paths, entry.Path)
	}
	return paths, nil
}

func (c *Client) readme(ctx context.Context, owner, repo, token string) (string, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/readme", c.baseURL, owner, repo), "application/vnd.github.raw+json", token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("github: read readme: %w", err)
	}
	return string(body), nil
}

var excludedDirs = []string{
	"node_modules/", "vendor/", "venv/", ".git/", ".github/",
	"dist/", "build/", "__pycache__/",
}

var excludedSuffixes = []string{
	".min.js", ".min.css", ".lock", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".ttf", ".woff", ".woff2",
}

var excludedFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"go.sum":            {},
}

// includePath filters tree entries that carry no architectural signal.
func includePath(p string) bool {
	for _, dir := range excludedDirs {
		if strings.HasPrefix(p, dir) || strings.Contains(p, "/"+dir) {
			return false
		}
	}
	base := path.Base(p)
	if _, ok := excludedFiles[base]; ok {
		return false
	}
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return true
}
