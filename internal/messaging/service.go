package messaging

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

const maxBodyLength = 5000

// Event names of the websocket envelope.
const (
	EventJoinConversation = "join_conversation"
	EventJoined           = "joined"
	EventNewMessage       = "new_message"
	EventNewConversation  = "new_conversation"
	EventError            = "error"
)

// Broadcaster pushes an event to every open connection of the given users.
type Broadcaster interface {
	SendToUsers(userIDs []uint, event string, data any)
}

// StartInput opens a conversation with a first message.
type StartInput struct {
	ParticipantIDs []uint `json:"participant_ids"`
	PropertyID     *uint  `json:"property_id"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

type Service struct {
	db          *database.Database
	broadcaster Broadcaster
	logger      *logrus.Logger
}

// NewService builds the messaging service. A nil broadcaster disables
// realtime delivery.
func NewService(db *database.Database, broadcaster Broadcaster, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{db: db, broadcaster: broadcaster, logger: logger}
}

func (s *Service) broadcast(userIDs []uint, event string, data any) {
	if s.broadcaster != nil {
		s.broadcaster.SendToUsers(userIDs, event, data)
	}
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.BadRequest("message body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return "", apperr.BadRequest("message body exceeds %d characters", maxBodyLength)
	}
	return body, nil
}

func (s *Service) Conversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	return s.db.ListConversations(ctx, userID)
}

// Start opens a conversation between the sender and the participants, or
// posts into the existing one with the same participants and property.
// The returned flag reports whether a new conversation was created.
func (s *Service) Start(ctx context.Context, senderID uint, in StartInput) (*models.Conversation, bool, error) {
	body, err := cleanBody(in.Body)
	if err != nil {
		return nil, false, err
	}

	ids := []uint{senderID}
	for _, id := range in.ParticipantIDs {
		if id == 0 {
			return nil, false, apperr.BadRequest("participant id must be positive")
		}
		if id != senderID {
			ids = append(ids, id)
		}
	}
	ids = dedupe(ids)
	if len(ids) < 2 {
		return nil, false, apperr.BadRequest("a conversation needs at least one other participant")
	}

	n, err := s.db.CountUsers(ctx, ids)
	if err != nil {
		return nil, false, err
	}
	if n != int64(len(ids)) {
		return nil, false, apperr.BadRequest("unknown participant")
	}
	if in.PropertyID != nil {
		if _, err := s.db.GetProperty(ctx, *in.PropertyID); err != nil {
			return nil, false, err
		}
	}

	existing, err := s.db.FindConversation(ctx, ids, in.PropertyID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if _, err := s.post(ctx, existing.ID, senderID, body, existing.ParticipantIDs()); err != nil {
			return nil, false, err
		}
		conv, err := s.db.GetConversation(ctx, existing.ID)
		return conv, false, err
	}

	conv := &models.Conversation{PropertyID: in.PropertyID, Subject: strings.TrimSpace(in.Subject)}
	for _, id := range ids {
		conv.Participants = append(conv.Participants, models.ConversationParticipant{UserID: id})
	}
	first := &models.Message{SenderID: senderID, Body: body}
	if err := s.db.CreateConversation(ctx, conv, first); err != nil {
		return nil, false, err
	}

	created, err := s.db.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"participants":    len(ids),
	}).Info("Conversation started")
	s.broadcast(ids, EventNewConversation, models.ConversationSummary{Conversation: *created, LastMessage: first})
	return created, true, nil
}

// requireParticipant returns NotFound for unknown conversations and
// Forbidden for conversations the user is not part of.
func (s *Service) requireParticipant(ctx context.Context, conversationID, userID uint) error {
	if _, err := s.db.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	ok, err := s.db.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("not a participant of conversation %d", conversationID)
	}
	return nil
}

// Join checks that the user may follow the conversation in realtime.
func (s *Service) Join(ctx context.Context, userID, conversationID uint) error {
	return s.requireParticipant(ctx, conversationID, userID)
}

func (s *Service) Messages(ctx context.Context, userID, conversationID, before uint, limit int) ([]models.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(ctx, conversationID, before, limit)
}

// Send stores a message and pushes it to every participant.
func (s *Service) Send(ctx context.Context, userID, conversationID uint, body string) (*models.Message, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	participants, err := s.db.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, conversationID, userID, body, participants)
}

func (s *Service) post(ctx context.Context, conversationID, senderID uint, body string, participants []uint) (*models.Message, error) {
	msg := &models.Message{ConversationID: conversationID, SenderID: senderID, Body: body}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.broadcast(participants, EventNewMessage, msg)
	return msg, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, conversationID uint) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.db.MarkRead(ctx, conversationID, userID)
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
