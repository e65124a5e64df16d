package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"autoelite.com/storefront/internal/store"
)

type LeadStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, status *store.ConversationStatus) ([]store.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	SetConversationStatus(ctx context.Context, id string, status store.ConversationStatus) error
}

// LeadService is the seller's view of captured conversations.
type LeadService struct {
	store LeadStore
	log   zerolog.Logger
}

func NewLeadService(s LeadStore, log zerolog.Logger) *LeadService {
	return &LeadService{store: s, log: log}
}

func (s *LeadService) List(ctx context.Context, status *store.ConversationStatus) ([]store.Conversation, error) {
	if status != nil && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *status)}
	}
	return s.store.ListConversations(ctx, status)
}

// Get returns nil, nil, nil for an unknown conversation.
func (s *LeadService) Get(ctx context.Context, id string) (*store.Conversation, []store.Message, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, nil
	}
	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for conversation: %w", err)
	}
	return conv, messages, nil
}

// Close resolves a conversation. Closed conversations stay closed.
func (s *LeadService) Close(ctx context.Context, id string) error {
	if err := s.store.SetConversationStatus(ctx, id, store.StatusClosed); err != nil {
		return err
	}
	s.log.Info().Str("conversation_id", id).Msg("conversation closed by seller")
	return nil
}
