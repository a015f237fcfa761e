package models

import "time"

type Conversation struct {
	ID            uint                      `gorm:"primaryKey" json:"id"`
	PropertyID    *uint                     `gorm:"index" json:"property_id"`
	Subject       string                    `json:"subject"`
	LastMessageAt time.Time                 `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time                 `json:"created_at"`
	Participants  []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// ParticipantIDs returns the user ids in the conversation.
func (c *Conversation) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

type ConversationParticipant struct {
	ConversationID uint       `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey;index" json:"user_id"`
	LastReadAt     *time.Time `json:"last_read_at"`
	User           *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint      `gorm:"not null" json:"sender_id"`
	Body           string    `gorm:"not null" json:"body"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// ConversationSummary is the list item shown in the inbox.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message"`
	UnreadCount int64    `json:"unread_count"`
}
