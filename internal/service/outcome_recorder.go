package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/events"
	"github.com/popeskul/insdr-dispatcher/internal/ledger"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

type outcomeRecorder struct {
	repo      repository.Repository
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewOutcomeRecorder(repo repository.Repository, publisher events.Publisher, logger *zap.Logger) OutcomeRecorder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &outcomeRecorder{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordSuccess debits the account, writes the delivery log and marks the
// message sent in one database transaction. The account row stays locked
// until commit, and a message that already left pending rolls the debit
// back with repository.ErrStatusConflict.
func (r *outcomeRecorder) RecordSuccess(ctx context.Context, msg *models.ScheduledMessage, ch models.ChannelType, cost int64, providerMessageID string) error {
	now := r.now()

	err := r.repo.WithTx(ctx, func(tx repository.Repository) error {
		if err := tx.Account().LockForUpdate(ctx, msg.AccountID); err != nil {
			return err
		}

		if err := tx.Message().MarkSent(ctx, msg.ID, now); err != nil {
			return err
		}

		if err := tx.Transaction().Create(ctx, &models.Transaction{
			AccountID:   msg.AccountID,
			Kind:        models.TransactionUsage,
			Amount:      cost,
			Status:      models.TransactionStatusCompleted,
			Description: fmt.Sprintf("%s message %s", ch, msg.ID),
			Metadata:    ledger.UsageMetadata(msg.ID, ch),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		return tx.MessageLog().Create(ctx, &models.MessageLog{
			MessageID:         msg.ID,
			AccountID:         msg.AccountID,
			RecipientPhone:    msg.RecipientPhone,
			Content:           msg.Content,
			Channel:           ch,
			Cost:              cost,
			ProviderMessageID: providerMessageID,
			CreatedAt:         now,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record success for message %s: %w", msg.ID, err)
	}

	r.publish(ctx, events.DeliveryEvent{
		MessageID:         msg.ID,
		AccountID:         msg.AccountID,
		Channel:           ch,
		Status:            models.MessageStatusSent,
		Cost:              cost,
		ProviderMessageID: providerMessageID,
		OccurredAt:        now,
	})
	return nil
}

// RecordFailure marks the message failed. Nothing is charged.
func (r *outcomeRecorder) RecordFailure(ctx context.Context, msg *models.ScheduledMessage, reason string) error {
	if err := r.repo.Message().MarkFailed(ctx, msg.ID, reason); err != nil {
		return fmt.Errorf("failed to record failure for message %s: %w", msg.ID, err)
	}

	r.publish(ctx, events.DeliveryEvent{
		MessageID:  msg.ID,
		AccountID:  msg.AccountID,
		Channel:    models.ChannelType(msg.Channel.String),
		Status:     models.MessageStatusFailed,
		Reason:     reason,
		OccurredAt: r.now(),
	})
	return nil
}

func (r *outcomeRecorder) publish(ctx context.Context, event events.DeliveryEvent) {
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("Failed to publish delivery event",
			zap.String("message_id", event.MessageID),
			zap.String("routing_key", event.RoutingKey()),
			zap.Error(err))
	}
}
