package app

import (
	"fmt"

	"docchat/internal/ai"
	"docchat/internal/model"
)

const NoContextResponse = `I couldn't find anything in the uploaded documentation that answers your question.

A few things that usually help:

1. **Rephrase the question** using the terms the documentation is likely to use
2. **Upload the relevant documentation** if it has not been added yet
3. **Narrow the question** to a topic the uploaded docs cover

Let me know what you are trying to do and I'll help where I can.`

const NoContextWarning = "No relevant documentation found. Please upload documentation first."

func buildSystemPrompt(sourcesSummary, context string, confidence, lowConfidence float64) string {
	return fmt.Sprintf(`You are a documentation assistant. You help users understand and use a product by answering questions from its official documentation.

## Available Documentation

%s

## Documentation Context

%s

## Instructions

1. Answer only from the documentation context above, or from what can reasonably be inferred from it.
2. Cite the source file or section for every specific claim.
3. If the documentation does not contain the answer, say so plainly instead of guessing.
4. Format code with fenced markdown blocks and language tags, reusing examples from the documentation where possible.
5. Prefer step-by-step explanations for procedures.
6. The retrieved context matches the question with %.0f%% relevance. If that is below %.0f%%, tell the user the answer may be incomplete.
7. If the question is ambiguous, ask for clarification or cover each reading.

## Response Format

- Markdown with headings or lists where they help
- Bold for key terms
- Code blocks for commands, requests and payloads`, sourcesSummary, context, confidence, lowConfidence)
}

// promptMessages keeps the last n turns, drops any leading assistant turns so
// the provider sees a user turn first, and appends the current message.
func promptMessages(history []model.ChatMessage, n int, current string) []ai.ChatMessage {
	if n >= 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	for len(history) > 0 && history[0].Role != model.RoleUser {
		history = history[1:]
	}
	out := make([]ai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		out = append(out, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return append(out, ai.ChatMessage{Role: model.RoleUser, Content: current})
}
