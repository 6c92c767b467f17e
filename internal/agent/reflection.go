package agent

import (
	"context"
	"log"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

const critiqueApproval = "OK"

const critiquePrompt = `You wrote the following draft answer to a user's question. Evaluate whether the draft fully and accurately answers the question given the available context. If the draft is adequate, reply with exactly OK. Otherwise describe its deficiencies concisely.

Question: %QUESTION%

Draft answer:
%DRAFT%`

const revisePrompt = `Revise your draft answer to address the critique. Output only the revised answer.

Question: %QUESTION%

Draft answer:
%DRAFT%

Critique:
%CRITIQUE%`

// runReflection produces a draft answer, critiques it, and revises it at
// most once. Critique or revision failure degrades to the draft; the first
// completion failing is a real turn failure.
func (r *Runner) runReflection(ctx context.Context, a domain.Agent, history []domain.Message, userMessage, contextBlock string) (*Result, error) {
	draft, err := r.complete(ctx, a, history, r.answerPrompt(userMessage, contextBlock))
	if err != nil {
		return nil, err
	}
	steps := []Step{{Kind: StepAnswer, Content: draft}}

	critique, err := r.complete(ctx, a, nil, fillPrompt(critiquePrompt, userMessage, draft, ""))
	if err != nil {
		log.Printf("agent: critique pass failed, keeping draft: %v", err)
		return &Result{Answer: draft, Steps: steps}, nil
	}
	critique = strings.TrimSpace(critique)
	steps = append(steps, Step{Kind: StepThought, Content: critique})

	if critique == "" || strings.EqualFold(critique, critiqueApproval) {
		return &Result{Answer: draft, Steps: steps}, nil
	}

	revised, err := r.complete(ctx, a, nil, fillPrompt(revisePrompt, userMessage, draft, critique))
	if err != nil {
		log.Printf("agent: revision pass failed, keeping draft: %v", err)
		return &Result{Answer: draft, Steps: steps}, nil
	}
	revised = strings.TrimSpace(revised)
	steps = append(steps, Step{Kind: StepAnswer, Content: revised})
	return &Result{Answer: revised, Steps: steps}, nil
}

func (r *Runner) answerPrompt(userMessage, contextBlock string) string {
	var b strings.Builder
	if contextBlock != "" {
		b.WriteString("Relevant context retrieved from the attached knowledge bases:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString(userMessage)
	return b.String()
}

func (r *Runner) complete(ctx context.Context, a domain.Agent, history []domain.Message, prompt string) (string, error) {
	messages := append(historyMessages(history), llm.Message{Role: domain.RoleUser, Content: prompt})
	return r.gen.Complete(ctx, llm.CompletionRequest{
		Model:    a.Foundation.ModelID,
		Config:   a.Config,
		Messages: messages,
	})
}

func fillPrompt(template, question, draft, critique string) string {
	out := strings.ReplaceAll(template, "%QUESTION%", question)
	out = strings.ReplaceAll(out, "%DRAFT%", draft)
	out = strings.ReplaceAll(out, "%CRITIQUE%", critique)
	return out
}
