package pipeline

// Phase identifies one of the three sequential generation phases.
type Phase string

const (
	PhaseExplanation Phase = "explanation"
	PhaseMapping     Phase = "mapping"
	PhaseDiagram     Phase = "diagram"
)

// EventKind tags the variants of the orchestrator's event stream.
type EventKind string

const (
	EventStarted      EventKind = "started"
	EventPhaseBegan   EventKind = "phase_began"
	EventPhaseChunk   EventKind = "phase_chunk"
	EventPhaseAborted EventKind = "phase_aborted"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"
)

// Event is one element of the generation event stream. Exactly one Started
// opens the stream and exactly one of PhaseAborted, Completed or Failed
// closes it.
type Event struct {
	Kind    EventKind
	Phase   Phase  // set on PhaseBegan and PhaseChunk
	Chunk   string // set on PhaseChunk
	Diagram string // set on Completed
	Message string // set on PhaseAborted and Failed
}
