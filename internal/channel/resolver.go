package channel

import (
	"fmt"

	"github.com/popeskul/insdr-dispatcher/internal/metadata"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// Resolver determines the definitive channel of a message.
type Resolver struct {
	classify Classifier
}

// NewResolver creates a resolver. A nil classifier uses LengthClassifier(DefaultSMSMaxLength).
func NewResolver(classify Classifier) *Resolver {
	if classify == nil {
		classify = LengthClassifier(DefaultSMSMaxLength)
	}
	return &Resolver{classify: classify}
}

// Resolve returns the explicit channel tag when one is stored. Legacy rows
// without a tag are multimedia when they carry images, otherwise the
// classifier decides between the plain-text channels.
func (r *Resolver) Resolve(msg *models.ScheduledMessage) (models.ChannelType, error) {
	fields, err := metadata.Decode(msg.Metadata)
	if err != nil {
		return "", err
	}

	tag := fields.ChannelTag()
	if msg.Channel.Valid && msg.Channel.String != "" {
		tag = msg.Channel.String
	}

	if tag != "" {
		ch, ok := models.ParseChannel(tag)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, tag)
		}
		return ch, nil
	}

	if len(fields.Images()) > 0 {
		return models.ChannelMMS, nil
	}

	return r.classify(msg.Content), nil
}
