package channel

import (
	"fmt"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// DefaultCosts are per-message credit costs in account currency units.
var DefaultCosts = map[models.ChannelType]int64{
	models.ChannelSMS:          20,
	models.ChannelLMS:          50,
	models.ChannelMMS:          100,
	models.ChannelAlimtalk:     15,
	models.ChannelFriendtalk:   25,
	models.ChannelBrandMessage: 30,
	models.ChannelBrandFree:    35,
}

// CostTable maps a channel to its per-message cost.
type CostTable map[models.ChannelType]int64

// NewCostTable layers overrides (keyed by channel name) on top of DefaultCosts.
func NewCostTable(overrides map[string]int64) (CostTable, error) {
	table := make(CostTable, len(DefaultCosts))
	for ch, cost := range DefaultCosts {
		table[ch] = cost
	}

	for name, cost := range overrides {
		ch, ok := models.ParseChannel(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, name)
		}
		if cost <= 0 {
			return nil, fmt.Errorf("non-positive cost %d for channel %s", cost, name)
		}
		table[ch] = cost
	}

	return table, nil
}

// Cost returns the price of one message on ch.
func (t CostTable) Cost(ch models.ChannelType) (int64, error) {
	cost, ok := t[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, ch)
	}
	return cost, nil
}
