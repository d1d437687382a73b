package payload

import (
	"github.com/popeskul/insdr-dispatcher/internal/metadata"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// Params is the channel-specific part of a gateway request. Exactly one
// concrete type exists per channel family.
type Params interface {
	isParams()
}

// TextParams serve sms and lms.
type TextParams struct {
	Subject string `json:"subject,omitempty" validate:"max=40"`
}

type MMSParams struct {
	Subject   string   `json:"subject,omitempty" validate:"max=40"`
	ImageURLs []string `json:"image_urls" validate:"required,min=1,max=3,dive,required"`
}

type AlimtalkParams struct {
	SenderKey    string            `json:"sender_key" validate:"required"`
	TemplateCode string            `json:"template_code" validate:"required"`
	Buttons      []metadata.Button `json:"buttons,omitempty" validate:"max=5,dive"`
}

type FriendtalkParams struct {
	SenderKey string            `json:"sender_key" validate:"required"`
	ImageURL  string            `json:"image_url,omitempty" validate:"omitempty,url"`
	ImageLink string            `json:"image_link,omitempty" validate:"omitempty,url"`
	Buttons   []metadata.Button `json:"buttons,omitempty" validate:"max=5,dive"`
	AdFlag    bool              `json:"ad_flag"`
}

type BrandMessageParams struct {
	SenderKey    string            `json:"sender_key" validate:"required"`
	TemplateCode string            `json:"template_code" validate:"required"`
	Targeting    string            `json:"targeting" validate:"required,oneof=M N I"`
	Buttons      []metadata.Button `json:"buttons,omitempty" validate:"max=5,dive"`
}

type BrandFreeParams struct {
	SenderKey string            `json:"sender_key" validate:"required"`
	Targeting string            `json:"targeting" validate:"required,oneof=M N I"`
	Header    string            `json:"header,omitempty" validate:"max=20"`
	ImageURL  string            `json:"image_url,omitempty" validate:"omitempty,url"`
	Buttons   []metadata.Button `json:"buttons,omitempty" validate:"max=5,dive"`
	AdFlag    bool              `json:"ad_flag"`
}

func (TextParams) isParams()         {}
func (MMSParams) isParams()          {}
func (AlimtalkParams) isParams()     {}
func (FriendtalkParams) isParams()   {}
func (BrandMessageParams) isParams() {}
func (BrandFreeParams) isParams()    {}

// Request is the normalised gateway call for one message.
type Request struct {
	MessageID   string             `json:"message_id"`
	Channel     models.ChannelType `json:"channel"`
	To          string             `json:"to"`
	ToName      string             `json:"to_name,omitempty"`
	From        string             `json:"from"`
	Content     string             `json:"content"`
	ReserveTime string             `json:"reserve_time,omitempty"`
	Params      Params             `json:"params"`
}
