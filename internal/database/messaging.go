package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"estatehub/server/internal/models"
)

// CreateConversation stores the conversation, its participants and the first message.
func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation, first *models.Message) error {
	return d.Transaction(ctx, func(tx *Database) error {
		now := tx.now()
		conv.CreatedAt = now
		conv.LastMessageAt = now
		participants := conv.Participants
		conv.Participants = nil
		if err := tx.db.WithContext(ctx).Create(conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		for i := range participants {
			participants[i].ConversationID = conv.ID
		}
		if len(participants) > 0 {
			if err := tx.db.WithContext(ctx).Create(&participants).Error; err != nil {
				return fmt.Errorf("failed to add participants: %w", err)
			}
		}
		conv.Participants = participants

		if first != nil {
			first.ConversationID = conv.ID
			first.CreatedAt = now
			if err := tx.db.WithContext(ctx).Create(first).Error; err != nil {
				return fmt.Errorf("failed to create first message: %w", err)
			}
			return tx.MarkRead(ctx, conv.ID, first.SenderID)
		}
		return nil
	})
}

// FindConversation returns the conversation with exactly the given participant
// set about the same property, or nil when none exists.
func (d *Database) FindConversation(ctx context.Context, userIDs []uint, propertyID *uint) (*models.Conversation, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	want := uniqueSorted(userIDs)

	// Candidates: conversations of the first user with the right property
	q := d.db.WithContext(ctx).Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", want[0])
	if propertyID != nil {
		q = q.Where("conversations.property_id = ?", *propertyID)
	} else {
		q = q.Where("conversations.property_id IS NULL")
	}
	var candidates []uint
	if err := q.Pluck("conversations.id", &candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to look up conversations: %w", err)
	}

	for _, id := range candidates {
		var members []uint
		err := d.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
			Where("conversation_id = ?", id).
			Order("user_id").
			Pluck("user_id", &members).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load participants: %w", err)
		}
		if equalIDs(members, want) {
			return d.GetConversation(ctx, id)
		}
	}
	return nil, nil
}

func (d *Database) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).Preload("Participants.User").First(&conv, id).Error
	if err != nil {
		return nil, notFound(err, "conversation %d not found", id)
	}
	return &conv, nil
}

func (d *Database) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// ParticipantIDs returns the user ids of a conversation.
func (d *Database) ParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return ids, nil
}

// ListConversations returns the user's inbox, newest activity first.
func (d *Database) ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	var memberships []models.ConversationParticipant
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	if len(memberships) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]uint, 0, len(memberships))
	lastRead := make(map[uint]*time.Time, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ConversationID)
		lastRead[m.ConversationID] = m.LastReadAt
	}

	var convs []models.Conversation
	err := d.db.WithContext(ctx).Preload("Participants.User").
		Where("id IN ?", ids).
		Order("last_message_at DESC").Order("id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := models.ConversationSummary{Conversation: conv}

		var last []models.Message
		err := d.db.WithContext(ctx).Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").Order("id DESC").Limit(1).
			Find(&last).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load last message: %w", err)
		}
		if len(last) == 1 {
			summary.LastMessage = &last[0]
		}

		unread := d.db.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ?", conv.ID, userID)
		if ts := lastRead[conv.ID]; ts != nil {
			unread = unread.Where("created_at > ?", *ts)
		}
		if err := unread.Count(&summary.UnreadCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count unread messages: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListMessages pages backwards from before (exclusive id cursor) and returns
// messages oldest first.
func (d *Database) ListMessages(ctx context.Context, conversationID uint, before uint, limit int) ([]models.Message, error) {
	limit, _ = paginate(limit, 0, 50, 200)
	q := d.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var messages []models.Message
	if err := q.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateMessage persists a message and bumps the conversation activity.
func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	return d.Transaction(ctx, func(tx *Database) error {
		msg.CreatedAt = tx.now()
		if err := tx.db.WithContext(ctx).Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		err := tx.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", msg.ConversationID).
			UpdateColumn("last_message_at", msg.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("failed to update conversation activity: %w", err)
		}
		return tx.MarkRead(ctx, msg.ConversationID, msg.SenderID)
	})
}

func (d *Database) MarkRead(ctx context.Context, conversationID, userID uint) error {
	err := d.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("last_read_at", d.now()).Error
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

func uniqueSorted(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
