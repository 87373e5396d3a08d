package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"diagramgen/internal/gateway/config"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.GitHubConfig{APIURL: srv.URL})
}

func repoAPIHandler(t *testing.T, branch string, tree []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"default_branch":%q}`, branch)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/"+branch, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") != "1" {
			t.Errorf("tree request must be recursive")
		}
		fmt.Fprint(w, `{"tree":[`)
		for i, p := range tree {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"path":%q,"type":"blob"}`, p)
		}
		fmt.Fprint(w, `,{"path":"internal","type":"tree"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/readme", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.raw+json" {
			t.Errorf("readme accept header = %q", r.Header.Get("Accept"))
		}
		fmt.Fprint(w, "# Widgets")
	})
	return mux
}

func TestClientFetch_AssemblesContext(t *testing.T) {
	client := newTestClient(t, repoAPIHandler(t, "develop", []string{
		"cmd/api/main.go",
		"node_modules/x/index.js",
		"web/app.min.js",
		"package-lock.json",
		"internal/store/store.go",
	}))

	rc, err := client.Fetch(context.Background(), "acme", "widgets", "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if rc.DefaultBranch != "develop" {
		t.Fatalf("default branch = %q, want develop", rc.DefaultBranch)
	}
	if rc.Readme != "# Widgets" {
		t.Fatalf("readme = %q", rc.Readme)
	}
	want := "cmd/api/main.go\ninternal/store/store.go"
	if got := rc.FileTree(); got != want {
		t.Fatalf("file tree =\n%q\nwant\n%q", got, want)
	}
}

func TestClientFetch_BranchFallsBackToMain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tree":[{"path":"main.go","type":"blob"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/readme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "readme")
	})
	client := newTestClient(t, mux)

	rc, err := client.Fetch(context.Background(), "acme", "widgets", "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if rc.DefaultBranch != "main" {
		t.Fatalf("default branch = %q, want main fallback", rc.DefaultBranch)
	}
}

func TestClientFetch_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.Fetch(context.Background(), "acme", "gone", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestClientFetch_RateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Fetch(context.Background(), "acme", "widgets", "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}

func TestClientFetch_TokenForwarded(t *testing.T) {
	var sawAuth atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer user-token" {
			sawAuth.Store(true)
		}
		switch r.URL.Path {
		case "/repos/acme/widgets":
			fmt.Fprint(w, `{"default_branch":"main"}`)
		case "/repos/acme/widgets/git/trees/main":
			fmt.Fprint(w, `{"tree":[]}`)
		default:
			fmt.Fprint(w, "readme")
		}
	})
	client := newTestClient(t, mux)

	if _, err := client.Fetch(context.Background(), "acme", "widgets", "user-token"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !sawAuth.Load() {
		t.Fatalf("request token was not forwarded")
	}
}

func TestIncludePath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"cmd/api/main.go", true},
		{"node_modules/a/b.js", false},
		{"pkg/node_modules/a.js", false},
		{"assets/logo.png", false},
		{"web/bundle.min.js", false},
		{"yarn.lock", false},
		{"go.sum", false},
		{"docs/arch.md", true},
	}
	for _, tc := range cases {
		if got := includePath(tc.path); got != tc.want {
			t.Fatalf("includePath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Fetch(ctx context.Context, owner, repo, token string) (*RepositoryContext, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &RepositoryContext{DefaultBranch: "main"}, nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCachedProvider_SingleFetchPerKey(t *testing.T) {
	inner := &countingProvider{}
	cached, err := NewCachedProvider(inner, 10)
	if err != nil {
		t.Fatalf("NewCachedProvider: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cached.Fetch(context.Background(), "acme", "widgets", ""); err != nil {
				t.Errorf("Fetch: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.count(); got != 1 {
		t.Fatalf("inner fetches = %d, want 1", got)
	}

	if _, err := cached.Fetch(context.Background(), "acme", "widgets", ""); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := inner.count(); got != 1 {
		t.Fatalf("cache hit still called inner: %d fetches", got)
	}
}

func TestCachedProvider_DistinctTokensDistinctEntries(t *testing.T) {
	inner := &countingProvider{}
	cached, _ := NewCachedProvider(inner, 10)

	cached.Fetch(context.Background(), "acme", "widgets", "")
	cached.Fetch(context.Background(), "acme", "widgets", "tok-a")
	cached.Fetch(context.Background(), "acme", "widgets", "tok-a")

	if got := inner.count(); got != 2 {
		t.Fatalf("inner fetches = %d, want 2", got)
	}
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: ErrNotFound}
	cached, _ := NewCachedProvider(inner, 10)

	if _, err := cached.Fetch(context.Background(), "acme", "gone", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	inner.err = nil
	if _, err := cached.Fetch(context.Background(), "acme", "gone", ""); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if got := inner.count(); got != 2 {
		t.Fatalf("inner fetches = %d, want 2 (error must not be cached)", got)
	}
}
