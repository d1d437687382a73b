package channel_test

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popeskul/insdr-dispatcher/internal/channel"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		msg      *models.ScheduledMessage
		expected models.ChannelType
		wantErr  error
	}{
		{
			name: "explicit channel column",
			msg: &models.ScheduledMessage{
				Channel: sql.NullString{String: "alimtalk", Valid: true},
				Content: "hi",
			},
			expected: models.ChannelAlimtalk,
		},
		{
			name: "explicit channel column wins over metadata tag",
			msg: &models.ScheduledMessage{
				Channel:  sql.NullString{String: "friendtalk", Valid: true},
				Metadata: models.Metadata{"channel": "sms"},
			},
			expected: models.ChannelFriendtalk,
		},
		{
			name:     "metadata channel tag",
			msg:      &models.ScheduledMessage{Metadata: models.Metadata{"channelType": "brand_message"}},
			expected: models.ChannelBrandMessage,
		},
		{
			name:    "unknown tag",
			msg:     &models.ScheduledMessage{Metadata: models.Metadata{"channel": "pigeon"}},
			wantErr: channel.ErrUnsupportedChannel,
		},
		{
			name:     "legacy row with JSON-encoded images",
			msg:      &models.ScheduledMessage{Content: "hi", Metadata: models.Metadata{"imageUrls": `["url1","url2"]`}},
			expected: models.ChannelMMS,
		},
		{
			name:     "legacy row with native image list",
			msg:      &models.ScheduledMessage{Content: "hi", Metadata: models.Metadata{"image_urls": []any{"url1"}}},
			expected: models.ChannelMMS,
		},
		{
			name:     "legacy row with empty image list falls through to text",
			msg:      &models.ScheduledMessage{Content: "hi", Metadata: models.Metadata{"imageUrls": "[]"}},
			expected: models.ChannelSMS,
		},
		{
			name:     "short legacy text",
			msg:      &models.ScheduledMessage{Content: strings.Repeat("a", 90)},
			expected: models.ChannelSMS,
		},
		{
			name:     "long legacy text",
			msg:      &models.ScheduledMessage{Content: strings.Repeat("a", 91)},
			expected: models.ChannelLMS,
		},
	}

	resolver := channel.NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := resolver.Resolve(tt.msg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ch)
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	resolver := channel.NewResolver(nil)
	msg := &models.ScheduledMessage{
		Content:  "hello",
		Metadata: models.Metadata{"image_urls": `["a"]`, "imageUrls": []any{}},
	}

	first, err := resolver.Resolve(msg)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		ch, err := resolver.Resolve(msg)
		require.NoError(t, err)
		assert.Equal(t, first, ch)
	}
}

func TestClassifiers(t *testing.T) {
	korean := strings.Repeat("가", 46)

	assert.Equal(t, models.ChannelSMS, channel.LengthClassifier(90)(korean))
	assert.Equal(t, models.ChannelLMS, channel.ByteLengthClassifier(90)(korean))
	assert.Equal(t, models.ChannelSMS, channel.ByteLengthClassifier(90)(strings.Repeat("가", 45)))

	c, err := channel.NewClassifier("bytes", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelLMS, c(korean))

	_, err = channel.NewClassifier("vibes", 90)
	assert.Error(t, err)
}

func TestCostTable(t *testing.T) {
	table, err := channel.NewCostTable(map[string]int64{"mms": 200})
	require.NoError(t, err)

	cost, err := table.Cost(models.ChannelMMS)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cost)

	cost, err = table.Cost(models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cost)

	_, err = table.Cost(models.ChannelType("fax"))
	assert.ErrorIs(t, err, channel.ErrNoPrice)

	_, err = channel.NewCostTable(map[string]int64{"fax": 1})
	assert.ErrorIs(t, err, channel.ErrUnsupportedChannel)

	_, err = channel.NewCostTable(map[string]int64{"sms": -1})
	assert.Error(t, err)

	_, err = channel.NewCostTable(map[string]int64{"sms": 0})
	assert.ErrorContains(t, err, "non-positive cost")
}
