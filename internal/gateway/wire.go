package gateway

import "github.com/popeskul/insdr-dispatcher/internal/payload"

type envelope struct {
	MessageID   string `json:"message_id"`
	To          string `json:"to"`
	ToName      string `json:"to_name,omitempty"`
	From        string `json:"from"`
	Content     string `json:"content"`
	ReserveTime string `json:"reserve_time,omitempty"`
}

func envelopeOf(req *payload.Request) envelope {
	return envelope{
		MessageID:   req.MessageID,
		To:          req.To,
		ToName:      req.ToName,
		From:        req.From,
		Content:     req.Content,
		ReserveTime: req.ReserveTime,
	}
}

// Bodies embed the envelope and the channel params so both flatten into one
// JSON object.

type textBody struct {
	envelope
	payload.TextParams
}

type mmsBody struct {
	envelope
	payload.MMSParams
}

type alimtalkBody struct {
	envelope
	payload.AlimtalkParams
}

type friendtalkBody struct {
	envelope
	payload.FriendtalkParams
}

type brandMessageBody struct {
	envelope
	payload.BrandMessageParams
}

type brandFreeBody struct {
	envelope
	payload.BrandFreeParams
}
