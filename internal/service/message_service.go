package service

import (
	"context"
	"fmt"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

type messageService struct {
	repo repository.Repository
}

func NewMessageService(repo repository.Repository) MessageService {
	return &messageService{repo: repo}
}

// GetMessages lists messages with pagination. A nil status lists all.
func (s *messageService) GetMessages(ctx context.Context, status *models.MessageStatus, page, limit int) (*api.MessageListResponse, error) {
	offset := (page - 1) * limit

	messages, err := s.repo.Message().GetMessages(ctx, status, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	totalCount, err := s.repo.Message().CountMessages(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	totalPages := int(totalCount) / limit
	if int(totalCount)%limit > 0 {
		totalPages++
	}

	messageResponses := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		messageResponses = append(messageResponses, toAPIMessage(msg))
	}

	return &api.MessageListResponse{
		Messages: messageResponses,
		Pagination: api.Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   int(totalCount),
			ItemsPerPage: limit,
		},
	}, nil
}

func toAPIMessage(msg *models.ScheduledMessage) api.Message {
	content := msg.Content
	out := api.Message{
		Id:             msg.ID,
		AccountId:      msg.AccountID,
		RecipientPhone: msg.RecipientPhone,
		Content:        &content,
		ScheduledAt:    msg.ScheduledAt,
		Status:         msg.Status,
	}

	if ch, ok := models.ParseChannel(msg.Channel.String); ok {
		out.Channel = &ch
	}

	if msg.SentAt.Valid {
		sentAt := msg.SentAt.Time
		out.SentAt = &sentAt
	}

	if msg.Error.Valid {
		reason := msg.Error.String
		out.Error = &reason
	}

	return out
}
