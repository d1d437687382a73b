package models

import "github.com/popeskul/insdr-dispatcher/internal/api"

type ChannelType = api.ChannelType

const (
	ChannelSMS          = api.Sms
	ChannelLMS          = api.Lms
	ChannelMMS          = api.Mms
	ChannelAlimtalk     = api.Alimtalk
	ChannelFriendtalk   = api.Friendtalk
	ChannelBrandMessage = api.BrandMessage
	ChannelBrandFree    = api.BrandFree
)

// Channels lists every channel the dispatcher can deliver on.
var Channels = []ChannelType{
	ChannelSMS,
	ChannelLMS,
	ChannelMMS,
	ChannelAlimtalk,
	ChannelFriendtalk,
	ChannelBrandMessage,
	ChannelBrandFree,
}

// ParseChannel returns the channel for a stored tag.
func ParseChannel(s string) (ChannelType, bool) {
	for _, ch := range Channels {
		if string(ch) == s {
			return ch, true
		}
	}
	return "", false
}
