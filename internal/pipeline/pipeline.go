// Package pipeline orchestrates the three-phase diagram generation run:
// architecture explanation, component mapping, Mermaid diagram.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"diagramgen/internal/github"
	"diagramgen/internal/llm"
	"diagramgen/internal/mermaid"
)

// AbortMessage accompanies every PhaseAborted event.
const AbortMessage = "Invalid or unclear instructions provided"

const defaultPhaseTimeout = 5 * time.Minute

// phaseEffort is fixed for all phases.
const phaseEffort = llm.EffortMedium

// Service runs generation pipelines against one engine. It is safe for
// concurrent use; each Run is independent.
type Service struct {
	engine       llm.Engine
	phaseTimeout time.Duration
}

func NewService(engine llm.Engine, phaseTimeout time.Duration) *Service {
	if phaseTimeout <= 0 {
		phaseTimeout = defaultPhaseTimeout
	}
	return &Service{engine: engine, phaseTimeout: phaseTimeout}
}

// Run executes the pipeline for a validated request and already-fetched
// repository context. It returns an unbuffered event channel that is closed
// after the terminal event. Canceling ctx abandons the run: in-flight backend
// reads are aborted and no further events are delivered.
func (s *Service) Run(ctx context.Context, req GenerationRequest, rc *github.RepositoryContext) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		s.run(ctx, req, rc, out)
	}()
	return out
}

func (s *Service) run(ctx context.Context, req GenerationRequest, rc *github.RepositoryContext, out chan<- Event) {
	m := newMachine()
	if !emit(ctx, out, Event{Kind: EventStarted}) {
		return
	}

	// Phase 1: explanation.
	if err := m.to(StateExplanation); err != nil {
		s.fail(ctx, out, m, err)
		return
	}
	sys := explanationSystemPrompt
	if req.Instructions != "" {
		sys += "\n\n" + strings.ReplaceAll(additionalInstructionsPrompt, "{instructions}", req.Instructions)
	}
	payload := []llm.Section{
		{Label: "file_tree", Text: rc.FileTree()},
		{Label: "readme", Text: rc.Readme},
		{Label: "instructions", Text: req.Instructions},
	}
	explanation, ok := s.runPhase(ctx, out, m, PhaseExplanation, sys, payload, req.APIKey)
	if !ok {
		return
	}
	if strings.Contains(explanation, badInstructionsSentinel) {
		if err := m.to(StateAborted); err != nil {
			s.fail(ctx, out, m, err)
			return
		}
		emit(ctx, out, Event{Kind: EventPhaseAborted, Phase: PhaseExplanation, Message: AbortMessage})
		return
	}

	// Phase 2: component mapping.
	if err := m.to(StateMapping); err != nil {
		s.fail(ctx, out, m, err)
		return
	}
	mapping, ok := s.runPhase(ctx, out, m, PhaseMapping, mappingSystemPrompt, []llm.Section{
		{Label: "explanation", Text: explanation},
		{Label: "file_tree", Text: rc.FileTree()},
	}, req.APIKey)
	if !ok {
		return
	}

	// Phase 3: diagram.
	if err := m.to(StateDiagram); err != nil {
		s.fail(ctx, out, m, err)
		return
	}
	sys = diagramSystemPrompt
	if req.Instructions != "" {
		sys += "\n\n" + strings.ReplaceAll(additionalInstructionsPrompt, "{instructions}", req.Instructions)
	}
	payload = []llm.Section{
		{Label: "explanation", Text: explanation},
		{Label: "component_mapping", Text: mapping},
		{Label: "instructions", Text: req.Instructions},
	}
	diagramRaw, ok := s.runPhase(ctx, out, m, PhaseDiagram, sys, payload, req.APIKey)
	if !ok {
		return
	}

	// Only click paths are rewritten; the diagram text is otherwise emitted
	// exactly as accumulated.
	diagram := mermaid.RewriteClickEvents(diagramRaw, req.Owner, req.Repo, rc.DefaultBranch)

	if err := m.to(StateCompleted); err != nil {
		s.fail(ctx, out, m, err)
		return
	}
	emit(ctx, out, Event{Kind: EventCompleted, Diagram: diagram})
}

// runPhase streams one phase to completion. It emits PhaseBegan, one
// PhaseChunk per fragment, and returns the accumulated text. ok is false when
// the run must stop, in which case the terminal event (if any) has already
// been emitted.
func (s *Service) runPhase(ctx context.Context, out chan<- Event, m *machine, phase Phase, systemPrompt string, payload []llm.Section, apiKey string) (text string, ok bool) {
	if !emit(ctx, out, Event{Kind: EventPhaseBegan, Phase: phase}) {
		return "", false
	}

	phaseCtx, cancel := context.WithTimeout(ctx, s.phaseTimeout)
	defer cancel()

	chunks, errs := s.engine.GenerateStream(phaseCtx, systemPrompt, payload, apiKey, phaseEffort)
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
		if !emit(ctx, out, Event{Kind: EventPhaseChunk, Phase: phase, Chunk: chunk}) {
			return "", false
		}
	}
	if err := <-errs; err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		log.Printf("pipeline: phase %s failed: %v", phase, err)
		s.fail(ctx, out, m, err)
		return "", false
	}
	return b.String(), true
}

func (s *Service) fail(ctx context.Context, out chan<- Event, m *machine, err error) {
	if !IsTerminal(m.current) {
		if terr := m.to(StateFailed); terr != nil {
			log.Printf("pipeline: %v", terr)
		}
	}
	emit(ctx, out, Event{Kind: EventFailed, Message: err.Error()})
}

// emit delivers one event unless the run has been abandoned.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
