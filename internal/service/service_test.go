package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/gateway"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/service"
	"github.com/popeskul/insdr-dispatcher/internal/service/mocks"
)

func TestNewService(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	t.Run("wires a working dispatcher", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sender := mocks.NewMockSender(ctrl)
		sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(&gateway.Result{Success: true, ProviderMessageID: "p-1"}, nil)

		store := newMemStore()
		store.addAccount("acc-1", "0212345678")
		store.credit("acc-1", 100)
		msg := store.addMessage("acc-1", withChannel(models.ChannelSMS))

		svc, err := service.NewService(cfg, store.repo(), nil, sender, nil, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, svc.Dispatch)
		require.NotNil(t, svc.Message)
		require.NotNil(t, svc.Balance)
		require.NotNil(t, svc.Scheduler)
		require.NotNil(t, svc.Health)

		result, err := svc.Dispatch.RunDispatchCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Sent)
		assert.Equal(t, models.MessageStatusSent, store.message(msg.ID).Status)

		state, requests, _ := svc.Dispatch.GetCircuitBreakerStatus()
		assert.Equal(t, api.Closed, state)
		assert.Equal(t, uint32(1), requests)

		health := svc.Health.GetHealth()
		assert.Equal(t, api.HealthResponseRedisStatusDisconnected, health.RedisStatus)
		assert.False(t, svc.Scheduler.IsRunning())
	})

	t.Run("rejects unknown classifier", func(t *testing.T) {
		bad := *cfg
		bad.Channel.Classifier = "words"
		_, err := service.NewService(&bad, newMemStore().repo(), nil, nil, nil, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create channel classifier")
	})

	t.Run("rejects unknown priced channel", func(t *testing.T) {
		bad := *cfg
		bad.Pricing = map[string]int64{"fax": 10}
		_, err := service.NewService(&bad, newMemStore().repo(), nil, nil, nil, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create cost table")
	})
}
