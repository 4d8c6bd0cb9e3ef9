package llm

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// contextualizeInstructions asks the model to fold the chat history into a
// standalone question before retrieval runs.
const contextualizeInstructions = `Given the chat history and the latest user question, formulate a standalone question that can be understood without the chat history. Do NOT answer the question; reformulate it if needed and otherwise return it as is.`

const answerTemplate = `You are an expert assistant for {{ .Persona }}. Answer the user's question based on the following context.
Be friendly and helpful. If the information isn't in the context, say that you can't find that specific information in the provided documents, but you can try to answer other questions.

<context>
{{ join "\n\n" .Passages }}
</context>`

// PromptSet holds the compiled prompt templates. Templates are safe for
// concurrent use.
type PromptSet struct {
	persona string
	answer  *template.Template
}

// NewPromptSet compiles the prompt templates for the given persona.
func NewPromptSet(persona string) (*PromptSet, error) {
	if persona == "" {
		persona = "the portfolio owner"
	}
	tmpl, err := template.New("answer").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(answerTemplate)
	if err != nil {
		return nil, fmt.Errorf("llm: compile answer prompt: %w", err)
	}
	return &PromptSet{persona: persona, answer: tmpl}, nil
}

// Contextualize returns the system prompt for the question-rewrite step.
func (s *PromptSet) Contextualize() string {
	return contextualizeInstructions
}

// Answer renders the final system prompt with the retrieved passages embedded.
func (s *PromptSet) Answer(passages []string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Persona  string
		Passages []string
	}{Persona: s.persona, Passages: passages}
	if err := s.answer.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("llm: render answer prompt: %w", err)
	}
	return buf.String(), nil
}
