package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdesk/agentdesk/internal/agentloop"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
)

// ConversationService handles conversations and their agent loop.
type ConversationService struct {
	projects      ProjectOwnership
	conversations ConversationStore
	events        ActivityPublisher
	metrics       metrics.Recorder
	now           func() time.Time
}

// NewConversationService creates a new ConversationService.
func NewConversationService(projects ProjectOwnership, conversations ConversationStore, events ActivityPublisher, recorder metrics.Recorder) *ConversationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConversationService{
		projects:      projects,
		conversations: conversations,
		events:        events,
		metrics:       recorder,
		now:           time.Now,
	}
}

// CreateConversationInput defines input for starting a conversation.
type CreateConversationInput struct {
	Title    string
	Messages []model.Message
}

// LoopView is the agent loop state of a conversation.
type LoopView struct {
	ConversationID string          `json:"conversation_id"`
	ResetIndex     int             `json:"reset_index"`
	MessageCount   int             `json:"message_count"`
	State          agentloop.State `json:"state"`
}

// List returns conversation summaries of a project owned by userID.
func (s *ConversationService) List(ctx context.Context, userID, projectID string) ([]*model.Conversation, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.conversations.ListConversations(ctx, projectID)
}

// Create starts a conversation, optionally seeded with messages.
func (s *ConversationService) Create(ctx context.Context, userID, projectID string, input CreateConversationInput) (*model.Conversation, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateMessages(input.Messages); err != nil {
		return nil, err
	}

	messages, err := s.prepareMessages(nil, input.Messages)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = titleFromMessages(messages)
	}

	now := s.now().UTC()
	conv := &model.Conversation{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		UserID:    userID,
		Title:     title,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	s.metrics.AddMessagesAppended(len(messages))
	publish(s.events, userID, projectID, model.ActionConversationCreated, map[string]string{"conversation_id": conv.ID})
	return conv, nil
}

// Get returns a conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, userID, projectID, id string) (*model.Conversation, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	conv, err := s.conversations.GetConversation(ctx, projectID, id)
	if err != nil {
		return nil, mapConversationError(err)
	}
	return conv, nil
}

// Delete removes a conversation.
func (s *ConversationService) Delete(ctx context.Context, userID, projectID, id string) error {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.conversations.DeleteConversation(ctx, projectID, id); err != nil {
		return mapConversationError(err)
	}
	publish(s.events, userID, projectID, model.ActionConversationDeleted, map[string]string{"conversation_id": id})
	return nil
}

// AppendMessages appends messages to a conversation. Messages without an id
// get one; ids must be unique within the conversation.
func (s *ConversationService) AppendMessages(ctx context.Context, userID, projectID, id string, messages []model.Message) (*model.Conversation, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, invalid("messages", "at least one message is required")
	}
	if err := validateMessages(messages); err != nil {
		return nil, err
	}

	conv, err := s.conversations.MutateConversation(ctx, projectID, id, func(conv *model.Conversation) error {
		prepared, err := s.prepareMessages(conv.Messages, messages)
		if err != nil {
			return err
		}
		conv.Messages = append(conv.Messages, prepared...)
		if conv.Title == "" {
			conv.Title = titleFromMessages(conv.Messages)
		}
		return nil
	})
	if err != nil {
		return nil, mapConversationError(err)
	}

	s.metrics.AddMessagesAppended(len(messages))
	return conv, nil
}

// LoopState reduces the conversation's visible messages to the agent loop state.
func (s *ConversationService) LoopState(ctx context.Context, userID, projectID, id string) (*LoopView, error) {
	conv, err := s.Get(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}
	return loopView(conv), nil
}

// ApproveLoop records the user's decision on a pending approval request.
// It fails with ErrNotAwaitingApproval unless the loop is reviewing.
func (s *ConversationService) ApproveLoop(ctx context.Context, userID, projectID, id string, decision agentloop.Decision) (*LoopView, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := validateShortField("reason", decision.Reason, maxDescriptionLength); err != nil {
		return nil, err
	}

	conv, err := s.conversations.MutateConversation(ctx, projectID, id, func(conv *model.Conversation) error {
		state := agentloop.ReduceConversation(conv)
		msg, err := agentloop.ApprovalMessage(state, ulid.Make().String(), "call_"+ulid.Make().String(), decision, s.now())
		if err != nil {
			return err
		}
		conv.Messages = append(conv.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, mapConversationError(err)
	}

	action, label := model.ActionLoopRejected, "rejected"
	if decision.Approved {
		action, label = model.ActionLoopApproved, "approved"
	}
	s.metrics.IncLoopDecision(label)
	publish(s.events, userID, projectID, action, map[string]string{"conversation_id": id})

	return loopView(conv), nil
}

// ResetLoop hides every current message from the reducer so the loop starts
// over in the idle stage. Messages are kept for display.
func (s *ConversationService) ResetLoop(ctx context.Context, userID, projectID, id string) (*LoopView, error) {
	if err := s.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	conv, err := s.conversations.MutateConversation(ctx, projectID, id, func(conv *model.Conversation) error {
		conv.LoopResetIndex = len(conv.Messages)
		return nil
	})
	if err != nil {
		return nil, mapConversationError(err)
	}

	s.metrics.IncLoopReset()
	publish(s.events, userID, projectID, model.ActionLoopReset, map[string]string{"conversation_id": id})
	return loopView(conv), nil
}

func (s *ConversationService) checkProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.projects.GetProjectForUser(ctx, projectID, userID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

// prepareMessages assigns missing ids and timestamps and rejects ids that
// collide with existing messages or with each other.
func (s *ConversationService) prepareMessages(existing, incoming []model.Message) ([]model.Message, error) {
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, msg := range existing {
		seen[msg.ID] = true
	}

	now := s.now().UTC()
	out := make([]model.Message, 0, len(incoming))
	for _, msg := range incoming {
		if msg.ID == "" {
			msg.ID = ulid.Make().String()
		}
		if seen[msg.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMessageID, msg.ID)
		}
		seen[msg.ID] = true

		if msg.CreatedAt == nil {
			created := now
			msg.CreatedAt = &created
		}
		if msg.Parts == nil {
			msg.Parts = []model.MessagePart{}
		}
		out = append(out, msg)
	}
	return out, nil
}

func loopView(conv *model.Conversation) *LoopView {
	return &LoopView{
		ConversationID: conv.ID,
		ResetIndex:     conv.LoopResetIndex,
		MessageCount:   len(conv.Messages),
		State:          agentloop.ReduceConversation(conv),
	}
}

func mapConversationError(err error) error {
	switch {
	case errors.Is(err, repository.ErrConversationNotFound):
		return ErrConversationNotFound
	case errors.Is(err, agentloop.ErrNotAwaitingApproval):
		return ErrNotAwaitingApproval
	default:
		return err
	}
}
