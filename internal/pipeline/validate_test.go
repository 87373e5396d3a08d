package pipeline

import (
	"strings"
	"testing"
)

func TestValidate_AcceptsTypicalRequest(t *testing.T) {
	req := GenerationRequest{Owner: "acme", Repo: "widgets", Instructions: "focus on the data layer"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_RejectsReservedRepos(t *testing.T) {
	for _, repo := range []string{"fastapi", "streamlit", "flask", "api-analytics", "monkeytype"} {
		req := GenerationRequest{Owner: "acme", Repo: repo}
		err := req.Validate()
		if err == nil {
			t.Fatalf("repo %q must be rejected", repo)
		}
		verr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("repo %q: error type %T", repo, err)
		}
		if verr.Field != "repo" {
			t.Fatalf("repo %q: field = %q, want repo", repo, verr.Field)
		}
	}
}

func TestValidate_InstructionsLength(t *testing.T) {
	req := GenerationRequest{Owner: "o", Repo: "r", Instructions: strings.Repeat("x", 1000)}
	if err := req.Validate(); err != nil {
		t.Fatalf("1000-char instructions must pass: %v", err)
	}
	req.Instructions += "x"
	if err := req.Validate(); err == nil {
		t.Fatalf("1001-char instructions must be rejected")
	}
}

func TestValidate_RequiresOwnerAndRepo(t *testing.T) {
	if err := (&GenerationRequest{Repo: "r"}).Validate(); err == nil {
		t.Fatalf("missing owner must be rejected")
	}
	if err := (&GenerationRequest{Owner: "o"}).Validate(); err == nil {
		t.Fatalf("missing repo must be rejected")
	}
}
