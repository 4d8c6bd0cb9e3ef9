// Package llm selects among chat-model providers with retry and failover
// policy, consults the response cache, and grounds answers in retrieved
// portfolio passages.
package llm

// Role identifies who produced a chat message.
type Role string

const (
	// RoleUser marks a message written by the site visitor.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the chatbot.
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of client-supplied conversation history. Messages
// are immutable once created; the orchestrator only reads them.
type ChatMessage struct {
	Role Role
	Text string
}
