package domain

// TypingState is one participant's last announcement on the presence channel.
type TypingState struct {
	User     Alias `json:"user"`
	IsTyping bool  `json:"isTyping"`
}
