package ai

// Role identifies the author of a chat message.
type Role string

// Valid message roles, matching the OpenAI-compatible wire vocabulary.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry in a conversation.
type Message struct {
	Role    Role
	Content string
}
