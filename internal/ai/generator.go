package ai

import (
	"context"
	"fmt"
	"strings"
)

const groundedSystemPrompt = `You are a grounded synthesis engine for internal documents.

Answer using only the retrieved document excerpts supplied with the question.

RULES:
- Combine statements only if they describe the same fact or process
- Rephrase retrieved text for clarity and readability
- Do not add facts or data that are not in the excerpts
- Do not infer intent, cause or meaning
- Do not fill gaps with assumptions
- Do not resolve conflicting information arbitrarily

MANDATORY:
- If sources conflict, say: "The documents contain conflicting information."
- If information is partial or unclear, say: "The documents do not clearly specify this."
- If information spans several excerpts, combine it into one clear explanation
- Always cite source documents by filename

OUTPUT FORMAT:
Answer: <grounded answer based strictly on the excerpts>
Source: <comma-separated list of source files>`

// Generator produces an answer to question from the assembled context.
type Generator interface {
	Generate(ctx context.Context, question, passages string) (string, error)
}

type completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// ChatGenerator asks a chat-completion model for a grounded answer.
type ChatGenerator struct {
	client completer
}

func NewChatGenerator(client *OpenAICompatibleClient) *ChatGenerator {
	return &ChatGenerator{client: client}
}

func (g *ChatGenerator) Generate(ctx context.Context, question, passages string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: groundedSystemPrompt},
		{Role: "user", Content: BuildUserPrompt(question, passages)},
	}
	answer, err := g.client.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// BuildUserPrompt formats the question and context for the model.
func BuildUserPrompt(question, passages string) string {
	return fmt.Sprintf("Question: %s\n\nContext from documents:\n%s\n\nProvide a grounded answer based ONLY on the context above.", question, passages)
}

// MockGenerator answers without calling a model.
type MockGenerator struct{}

func (MockGenerator) Generate(_ context.Context, question, _ string) (string, error) {
	return fmt.Sprintf("This is a mock answer to: '%s'", question), nil
}
