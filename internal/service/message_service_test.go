package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository/mocks"
	"github.com/popeskul/insdr-dispatcher/internal/service"
)

func TestMessageService_GetMessages_Success(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sent := models.MessageStatusSent

	tests := []struct {
		name          string
		status        *models.MessageStatus
		page          int
		limit         int
		wantOffset    int
		total         int64
		messages      []*models.ScheduledMessage
		wantPages     int
		wantFirstChan string
	}{
		{
			name:       "first page of all messages",
			page:       1,
			limit:      10,
			wantOffset: 0,
			total:      25,
			messages: []*models.ScheduledMessage{
				{
					ID:             "m-1",
					AccountID:      "acc-1",
					RecipientPhone: "01012345678",
					Content:        "hello",
					Channel:        sql.NullString{String: "sms", Valid: true},
					Status:         models.MessageStatusSent,
					SentAt:         sql.NullTime{Time: sentAt, Valid: true},
				},
			},
			wantPages:     3,
			wantFirstChan: "sms",
		},
		{
			name:       "third page filtered by status",
			status:     &sent,
			page:       3,
			limit:      5,
			wantOffset: 10,
			total:      10,
			messages:   []*models.ScheduledMessage{},
			wantPages:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockRepo := mocks.NewMockRepository(ctrl)
			mockMessageRepo := mocks.NewMockMessageRepository(ctrl)
			mockRepo.EXPECT().Message().Return(mockMessageRepo).AnyTimes()

			mockMessageRepo.EXPECT().GetMessages(gomock.Any(), tt.status, tt.wantOffset, tt.limit).Return(tt.messages, nil)
			mockMessageRepo.EXPECT().CountMessages(gomock.Any(), tt.status).Return(tt.total, nil)

			resp, err := service.NewMessageService(mockRepo).GetMessages(context.Background(), tt.status, tt.page, tt.limit)
			require.NoError(t, err)

			assert.Len(t, resp.Messages, len(tt.messages))
			assert.Equal(t, tt.page, resp.Pagination.CurrentPage)
			assert.Equal(t, tt.wantPages, resp.Pagination.TotalPages)
			assert.Equal(t, int(tt.total), resp.Pagination.TotalItems)
			assert.Equal(t, tt.limit, resp.Pagination.ItemsPerPage)

			if tt.wantFirstChan != "" {
				first := resp.Messages[0]
				require.NotNil(t, first.Channel)
				assert.Equal(t, tt.wantFirstChan, string(*first.Channel))
				require.NotNil(t, first.SentAt)
				assert.Equal(t, sentAt, *first.SentAt)
				assert.Nil(t, first.Error)
			}
		})
	}
}

func TestMessageService_GetMessages_Failure(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(*mocks.MockMessageRepository)
		expectedErr string
	}{
		{
			name: "list fails",
			setupMocks: func(repo *mocks.MockMessageRepository) {
				repo.EXPECT().GetMessages(gomock.Any(), gomock.Nil(), 0, 10).Return(nil, errors.New("database error"))
			},
			expectedErr: "failed to get messages",
		},
		{
			name: "count fails",
			setupMocks: func(repo *mocks.MockMessageRepository) {
				repo.EXPECT().GetMessages(gomock.Any(), gomock.Nil(), 0, 10).Return([]*models.ScheduledMessage{}, nil)
				repo.EXPECT().CountMessages(gomock.Any(), gomock.Nil()).Return(int64(0), errors.New("database error"))
			},
			expectedErr: "failed to get total count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockRepo := mocks.NewMockRepository(ctrl)
			mockMessageRepo := mocks.NewMockMessageRepository(ctrl)
			mockRepo.EXPECT().Message().Return(mockMessageRepo).AnyTimes()
			tt.setupMocks(mockMessageRepo)

			resp, err := service.NewMessageService(mockRepo).GetMessages(context.Background(), nil, 1, 10)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestMessageService_FailedMessageCarriesReason(t *testing.T) {
	store := newMemStore()
	msg := store.addMessage("acc-1", withChannel(models.ChannelAlimtalk))
	require.NoError(t, store.repo().Message().MarkFailed(context.Background(), msg.ID, "missing required field for alimtalk: sender_key"))

	failed := models.MessageStatusFailed
	resp, err := service.NewMessageService(store.repo()).GetMessages(context.Background(), &failed, 1, 10)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	require.NotNil(t, resp.Messages[0].Error)
	assert.Equal(t, "missing required field for alimtalk: sender_key", *resp.Messages[0].Error)
	assert.Nil(t, resp.Messages[0].SentAt)
}
