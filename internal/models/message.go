package models

// Message is an incoming chat message in a guild channel
type Message struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	AuthorBot bool   `json:"author_bot"`
	Content   string `json:"content"`
}

// MemberJoin is emitted when a user joins a guild
type MemberJoin struct {
	GuildID  string `json:"guild_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Interaction is a button press on a message posted by the bot
type Interaction struct {
	ID        string `json:"id"`
	Token     string `json:"-"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	CustomID  string `json:"custom_id"`
}

// Mention renders a user mention
func Mention(userID string) string { return "<@" + userID + ">" }

// ChannelMention renders a channel mention
func ChannelMention(channelID string) string { return "<#" + channelID + ">" }
