package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeEngine returns scripted fragments per successive call, for offline use
// and tests. Call i consumes Responses[i] and, after the fragments, reports
// Errs[i] if set.
type FakeEngine struct {
	Responses [][]string
	Errs      []error

	mu    sync.Mutex
	calls int
}

func (f *FakeEngine) Name() string { return "FakeLLM" }
func (f *FakeEngine) Close() error { return nil }

// Calls reports how many generate calls have been issued so far.
func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeEngine) next() (fragments []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.Responses) {
		fragments = f.Responses[i]
	}
	if i < len(f.Errs) {
		err = f.Errs[i]
	}
	return fragments, err
}

func (f *FakeEngine) GenerateOnce(ctx context.Context, _ string, _ []Section, _ string, _ Effort) (string, error) {
	fragments, err := f.next()
	if err != nil {
		return "", err
	}
	return strings.Join(fragments, ""), nil
}

func (f *FakeEngine) GenerateStream(ctx context.Context, _ string, _ []Section, _ string, _ Effort) (<-chan string, <-chan error) {
	fragments, scriptErr := f.next()
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(out)
		for _, fr := range fragments {
			select {
			case out <- fr:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		errCh <- scriptErr
	}()
	return out, errCh
}
