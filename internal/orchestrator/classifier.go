package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/loom-ai/loom/internal/agent"
	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/llm"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"in": {}, "on": {}, "at": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "i": {}, "me": {}, "my": {}, "us": {}, "them": {}, "they": {}, "their": {}, "do": {},
	"does": {}, "did": {}, "what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "can": {},
	"could": {}, "should": {}, "would": {}, "may": {}, "might": {}, "will": {}, "shall": {},
}

const classifyPrompt = `You route a user's message to the best-suited agent in a group. Reply with exactly one agent name from the list, nothing else.

Agents:
%AGENTS%

Recent conversation:
%HISTORY%

Message: %MESSAGE%

Agent:`

const classifyHistoryWindow = 6

// Classifier selects which member agent of a communication answers a turn.
// It asks the foundation model first and falls back to a deterministic
// keyword-overlap heuristic when the model is unavailable or answers with an
// unknown name. Ties go to the first-registered agent.
type Classifier struct {
	gen agent.Generator
}

func NewClassifier(gen agent.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Select picks the responder for this turn. It always returns a member of
// the communication; selection is re-run every turn.
func (c *Classifier) Select(ctx context.Context, comm domain.Communication, history []domain.Message, userMessage string) domain.Agent {
	if len(comm.Agents) == 1 {
		return comm.Agents[0]
	}

	if c.gen != nil {
		if picked, ok := c.selectByModel(ctx, comm, history, userMessage); ok {
			return picked
		}
	}
	return selectByKeywords(comm, userMessage)
}

func (c *Classifier) selectByModel(ctx context.Context, comm domain.Communication, history []domain.Message, userMessage string) (domain.Agent, bool) {
	var agents strings.Builder
	for _, a := range comm.Agents {
		fmt.Fprintf(&agents, "%s: %s\n", a.Name, a.Description)
	}

	prompt := strings.ReplaceAll(classifyPrompt, "%AGENTS%", strings.TrimRight(agents.String(), "\n"))
	prompt = strings.ReplaceAll(prompt, "%HISTORY%", renderHistory(history))
	prompt = strings.ReplaceAll(prompt, "%MESSAGE%", userMessage)

	// The classification call borrows the first agent's foundation; it is a
	// routing step, not a member answering.
	out, err := c.gen.Complete(ctx, llm.CompletionRequest{
		Model:    comm.Agents[0].Foundation.ModelID,
		Messages: []llm.Message{{Role: domain.RoleUser, Content: prompt}},
	})
	if err != nil {
		log.Printf("orchestrator: responder classification failed, using keyword heuristic: %v", err)
		return domain.Agent{}, false
	}

	answer := strings.ToLower(strings.TrimSpace(out))
	for _, a := range comm.Agents {
		if strings.Contains(answer, strings.ToLower(a.Name)) {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// selectByKeywords scores each agent by the overlap between the message's
// keywords and the agent's name and description. The first agent wins ties,
// including the all-zero case.
func selectByKeywords(comm domain.Communication, userMessage string) domain.Agent {
	messageTokens := keywordSet(userMessage)

	best := comm.Agents[0]
	bestScore := overlap(messageTokens, keywordSet(best.Name+" "+best.Description))
	for _, a := range comm.Agents[1:] {
		score := overlap(messageTokens, keywordSet(a.Name+" "+a.Description))
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best
}

func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		clean := strings.ToLower(token)
		if _, ok := stopwords[clean]; ok {
			continue
		}
		set[clean] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for token := range a {
		if _, ok := b[token]; ok {
			count++
		}
	}
	return count
}

func renderHistory(history []domain.Message) string {
	start := 0
	if len(history) > classifyHistoryWindow {
		start = len(history) - classifyHistoryWindow
	}
	var b strings.Builder
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}
