package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagramgen/internal/gateway/run"
	"diagramgen/internal/github"
	"diagramgen/internal/llm"
	"diagramgen/internal/pipeline"
)

type stubProvider struct {
	rc  *github.RepositoryContext
	err error
}

func (p *stubProvider) Fetch(ctx context.Context, owner, repo, token string) (*github.RepositoryContext, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.rc, nil
}

func newTestClient(t *testing.T, engine llm.Engine, provider github.Provider) *connect.Client[GenerateRequest, GenerateResponse] {
	t.Helper()
	svc := pipeline.NewService(engine, time.Minute)
	h := NewDiagramHandler(svc, provider, run.NewFileTraceStore(t.TempDir()))

	mux := http.NewServeMux()
	mux.Handle(h.Routes())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[GenerateRequest, GenerateResponse](
		srv.Client(),
		srv.URL+GenerateProcedure,
		connect.WithCodec(jsonCodec{}),
	)
}

func TestGenerate_StreamsToCompletion(t *testing.T) {
	engine := &llm.FakeEngine{
		Responses: [][]string{
			{"explanation"},
			{"<component_mapping>\n1. API: cmd/api/main.go\n</component_mapping>"},
			{"flowchart TD\n    click A \"cmd/api/main.go\""},
		},
	}
	provider := &stubProvider{rc: &github.RepositoryContext{
		DefaultBranch: "main",
		FilePaths:     []string{"cmd/api/main.go"},
		Readme:        "# Widgets",
	}}
	client := newTestClient(t, engine, provider)

	stream, err := client.CallServerStream(context.Background(), connect.NewRequest(&GenerateRequest{
		Username: "acme",
		Repo:     "widgets",
	}))
	require.NoError(t, err)
	defer stream.Close()

	var records []GenerateResponse
	for stream.Receive() {
		records = append(records, *stream.Msg())
	}
	require.NoError(t, stream.Err())
	require.NotEmpty(t, records)

	assert.Equal(t, "started", records[0].Status)
	last := records[len(records)-1]
	require.Equal(t, "complete", last.Status)
	assert.Contains(t, last.Diagram, "https://github.com/acme/widgets/blob/main/cmd/api/main.go")
}

func TestGenerate_ValidationError(t *testing.T) {
	client := newTestClient(t, &llm.FakeEngine{}, &stubProvider{})

	stream, err := client.CallServerStream(context.Background(), connect.NewRequest(&GenerateRequest{
		Username: "acme",
		Repo:     "monkeytype",
	}))
	if err == nil {
		for stream.Receive() {
		}
		err = stream.Err()
		stream.Close()
	}
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestGenerate_FetchErrorAsRecord(t *testing.T) {
	client := newTestClient(t, &llm.FakeEngine{}, &stubProvider{err: github.ErrNotFound})

	stream, err := client.CallServerStream(context.Background(), connect.NewRequest(&GenerateRequest{
		Username: "acme",
		Repo:     "gone",
	}))
	require.NoError(t, err)
	defer stream.Close()

	var records []GenerateResponse
	for stream.Receive() {
		records = append(records, *stream.Msg())
	}
	require.NoError(t, stream.Err())
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Status)
}
