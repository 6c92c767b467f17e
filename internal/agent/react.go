package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

// DefaultMaxIterations bounds the ReAct loop when the agent does not set its
// own cap.
const DefaultMaxIterations = 6

const reactInstructions = `Answer the user's question. You have access to the following tools:

%TOOLS%

Use this exact format:

Thought: what to do next
Action: the tool to use, one of [%TOOL_NAMES%]
Action Input: JSON arguments for the tool
Observation: the tool's result

(Thought/Action/Action Input/Observation can repeat)

When you know the answer:

Thought: I know the final answer
Final Answer: the answer to the question`

// modelMove is one parsed model emission: either a final answer or a tool
// invocation, optionally preceded by a thought.
type modelMove struct {
	thought string
	action  string
	input   string
	answer  string
	isFinal bool
}

// runReact drives the ReAct state machine for one turn. The loop alternates
// model completions and tool calls until the model emits a final answer or
// the iteration cap forces an abort with a best-effort partial answer.
func (r *Runner) runReact(ctx context.Context, a domain.Agent, history []domain.Message, userMessage, contextBlock string) (*Result, error) {
	maxIterations := a.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	base := r.reactPrompt(a, userMessage, contextBlock)
	var steps []Step

	for i := 0; i < maxIterations; i++ {
		prompt := base
		if scratchpad := renderScratchpad(steps); scratchpad != "" {
			prompt += "\n\n" + scratchpad
		}

		messages := append(historyMessages(history), llm.Message{Role: domain.RoleUser, Content: prompt})
		out, err := r.gen.Complete(ctx, llm.CompletionRequest{
			Model:    a.Foundation.ModelID,
			Config:   a.Config,
			Messages: messages,
		})
		if err != nil {
			return nil, err
		}

		move := parseMove(out)
		if move.thought != "" {
			steps = append(steps, Step{Kind: StepThought, Content: move.thought})
		}
		if move.isFinal {
			steps = append(steps, Step{Kind: StepAnswer, Content: move.answer})
			return &Result{Answer: move.answer, Steps: steps}, nil
		}

		steps = append(steps, Step{Kind: StepAction, Tool: move.action, ToolInput: move.input})
		observation := r.invokeTool(ctx, move.action, move.input)
		steps = append(steps, Step{Kind: StepObservation, Content: observation})
	}

	answer := bestEffortAnswer(steps)
	steps = append(steps, Step{Kind: StepAnswer, Content: answer})
	return &Result{Answer: answer, Partial: true, Steps: steps}, nil
}

func (r *Runner) reactPrompt(a domain.Agent, userMessage, contextBlock string) string {
	instructions := strings.ReplaceAll(reactInstructions, "%TOOLS%", r.registry.Signatures(a.Tools))
	instructions = strings.ReplaceAll(instructions, "%TOOL_NAMES%", strings.Join(a.Tools, ", "))

	var b strings.Builder
	b.WriteString(instructions)
	if contextBlock != "" {
		b.WriteString("\n\nRelevant context retrieved from the attached knowledge bases:\n")
		b.WriteString(contextBlock)
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s", userMessage)
	return b.String()
}

// invokeTool executes one tool call. Failures of any kind become the
// observation text; the model adapts on the next think step.
func (r *Runner) invokeTool(ctx context.Context, name, input string) string {
	tool, err := r.registry.Get(name)
	if err != nil {
		return fmt.Sprintf("tool not found: %s", name)
	}

	args := map[string]any{}
	if input != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			args = map[string]any{"input": input}
		}
	}

	out, err := tool.Call(ctx, args)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	if strings.TrimSpace(out) == "" {
		return "the tool returned no output"
	}
	return out
}

// parseMove extracts the model's next move from its raw completion. Output
// with neither a final answer nor an action is treated as the final answer.
func parseMove(out string) modelMove {
	out = strings.TrimSpace(out)

	if idx := strings.Index(out, "Final Answer:"); idx >= 0 {
		return modelMove{
			thought: extractThought(out[:idx]),
			answer:  strings.TrimSpace(out[idx+len("Final Answer:"):]),
			isFinal: true,
		}
	}

	actionIdx := strings.Index(out, "Action:")
	inputIdx := strings.Index(out, "Action Input:")
	if actionIdx < 0 {
		return modelMove{answer: out, isFinal: true}
	}

	move := modelMove{thought: extractThought(out[:actionIdx])}
	actionEnd := len(out)
	if inputIdx > actionIdx {
		actionEnd = inputIdx
		input := out[inputIdx+len("Action Input:"):]
		// Models sometimes continue with a hallucinated observation; cut it.
		if obsIdx := strings.Index(input, "Observation:"); obsIdx >= 0 {
			input = input[:obsIdx]
		}
		move.input = strings.TrimSpace(input)
	}
	move.action = strings.TrimSpace(out[actionIdx+len("Action:") : actionEnd])
	return move
}

func extractThought(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimPrefix(prefix, "Thought:")
	return strings.TrimSpace(prefix)
}

// bestEffortAnswer assembles a partial answer when the loop is aborted: the
// most recent observation is the closest thing to evidence, then the most
// recent thought.
func bestEffortAnswer(steps []Step) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Kind == StepObservation && steps[i].Content != "" {
			return steps[i].Content
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Kind == StepThought && steps[i].Content != "" {
			return steps[i].Content
		}
	}
	return "I could not reach a final answer within the allowed number of reasoning steps."
}
