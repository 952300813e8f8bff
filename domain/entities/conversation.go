package entities

// Role identifies who authored a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single entry of a sender's conversation history
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn returns a turn authored by the user
func UserTurn(text string) ConversationTurn {
	return ConversationTurn{Role: RoleUser, Text: text}
}

// AssistantTurn returns a turn authored by the bot
func AssistantTurn(text string) ConversationTurn {
	return ConversationTurn{Role: RoleAssistant, Text: text}
}
