package agent

import (
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

// StepKind identifies one entry in a reasoning transcript.
type StepKind string

const (
	StepThought     StepKind = "thought"
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
	StepAnswer      StepKind = "answer"
)

// Step is one entry in a turn's reasoning transcript. Tool and ToolInput are
// set for action steps only.
type Step struct {
	Kind      StepKind
	Content   string
	Tool      string
	ToolInput string
}

// renderScratchpad serializes the steps taken so far back into the
// Thought/Action/Observation text format the model is prompted with.
func renderScratchpad(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		switch s.Kind {
		case StepThought:
			fmt.Fprintf(&b, "Thought: %s\n", s.Content)
		case StepAction:
			fmt.Fprintf(&b, "Action: %s\nAction Input: %s\n", s.Tool, s.ToolInput)
		case StepObservation:
			fmt.Fprintf(&b, "Observation: %s\n", s.Content)
		}
	}
	return b.String()
}

// historyMessages converts stored conversation history into prompt messages.
// System messages are carried through so persona instructions survive.
func historyMessages(history []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
