package domain

// Channel represents a chat channel (a Feishu group chat) inside a guild (a Feishu tenant)
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// MessageHandle identifies a message sent to or read from a channel
type MessageHandle struct {
	ID        string
	ChannelID string
	Deleted   bool // Already recalled on the platform side
}
