package domain

// Abstraction for sending messages (implemented by Telegram adapter)
type MessageSender interface {
	SendText(chatID int64, text string) error
}
