package channel

import (
	"fmt"
	"unicode/utf8"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// DefaultSMSMaxLength is the longest body still delivered as a short message.
const DefaultSMSMaxLength = 90

const (
	ClassifierLength = "length"
	ClassifierBytes  = "bytes"
)

// Classifier picks the plain-text channel for a message body.
type Classifier func(content string) models.ChannelType

// LengthClassifier counts characters. Bodies longer than maxLen are long messages.
func LengthClassifier(maxLen int) Classifier {
	return func(content string) models.ChannelType {
		if utf8.RuneCountInString(content) > maxLen {
			return models.ChannelLMS
		}
		return models.ChannelSMS
	}
}

// ByteLengthClassifier counts carrier bytes: ASCII is one byte, anything
// else two. Bodies longer than maxBytes are long messages.
func ByteLengthClassifier(maxBytes int) Classifier {
	return func(content string) models.ChannelType {
		if carrierBytes(content) > maxBytes {
			return models.ChannelLMS
		}
		return models.ChannelSMS
	}
}

// NewClassifier returns the classifier registered under name.
func NewClassifier(name string, maxLen int) (Classifier, error) {
	if maxLen <= 0 {
		maxLen = DefaultSMSMaxLength
	}
	switch name {
	case "", ClassifierLength:
		return LengthClassifier(maxLen), nil
	case ClassifierBytes:
		return ByteLengthClassifier(maxLen), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", name)
	}
}

func carrierBytes(s string) int {
	n := 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			n++
		} else {
			n += 2
		}
	}
	return n
}
