// Package payload assembles the parameter set the outbound gateway expects
// for each channel.
package payload

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/popeskul/insdr-dispatcher/internal/channel"
	"github.com/popeskul/insdr-dispatcher/internal/metadata"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// ReserveTimeLayout is the gateway's compact scheduling timestamp.
const ReserveTimeLayout = "20060102150405"

// DefaultTargeting sends branded messages to every reachable user.
const DefaultTargeting = "I"

// AccountLookup reads account profiles for callback number fallback.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

type buildFunc func(msg *models.ScheduledMessage, f *metadata.Fields) Params

// Builder builds gateway requests through a table keyed on channel.
type Builder struct {
	accounts AccountLookup
	validate *validator.Validate
	location *time.Location
	builders map[models.ChannelType]buildFunc
}

type buildOptions struct {
	scheduleAt *time.Time
}

// Option customises a single Build call.
type Option func(*buildOptions)

// WithSchedule asks the gateway to hold the message until at.
func WithSchedule(at time.Time) Option {
	return func(o *buildOptions) {
		o.scheduleAt = &at
	}
}

// NewBuilder creates a builder. loc is the gateway's wall-clock zone for
// reserve times; nil means UTC.
func NewBuilder(accounts AccountLookup, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	b := &Builder{
		accounts: accounts,
		validate: validate,
		location: loc,
	}
	b.builders = map[models.ChannelType]buildFunc{
		models.ChannelSMS:          buildText,
		models.ChannelLMS:          buildText,
		models.ChannelMMS:          buildMMS,
		models.ChannelAlimtalk:     buildAlimtalk,
		models.ChannelFriendtalk:   buildFriendtalk,
		models.ChannelBrandMessage: buildBrandMessage,
		models.ChannelBrandFree:    buildBrandFree,
	}
	return b
}

// Build assembles the request for msg on ch. Missing channel-mandatory
// fields fail with a MissingFieldError before any account lookup.
func (b *Builder) Build(ctx context.Context, ch models.ChannelType, msg *models.ScheduledMessage, opts ...Option) (*Request, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	build, ok := b.builders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", channel.ErrUnsupportedChannel, ch)
	}

	fields, err := metadata.Decode(msg.Metadata)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(msg.RecipientPhone) == "" {
		return nil, &MissingFieldError{Channel: ch, Fields: []string{"recipient_phone"}}
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, &MissingFieldError{Channel: ch, Fields: []string{"content"}}
	}

	params := build(msg, fields)
	if err := b.check(ch, params); err != nil {
		return nil, err
	}

	from, err := b.callbackNumber(ctx, msg, fields)
	if err != nil {
		return nil, err
	}

	req := &Request{
		MessageID: msg.ID,
		Channel:   ch,
		To:        normalizePhone(msg.RecipientPhone),
		ToName:    msg.RecipientName.String,
		From:      from,
		Content:   msg.Content,
		Params:    params,
	}
	if o.scheduleAt != nil {
		req.ReserveTime = o.scheduleAt.In(b.location).Format(ReserveTimeLayout)
	}

	return req, nil
}

func (b *Builder) check(ch models.ChannelType, params Params) error {
	err := b.validate.Struct(params)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate %s params: %w", ch, err)
	}

	var missing []string
	invalid := map[string]string{}
	for _, fe := range verrs {
		name := fieldPath(fe)
		if strings.HasPrefix(fe.Tag(), "required") {
			missing = append(missing, name)
			continue
		}
		invalid[name] = fe.Tag()
	}

	if len(missing) > 0 {
		return &MissingFieldError{Channel: ch, Fields: missing}
	}
	return &InvalidFieldError{Channel: ch, Fields: invalid}
}

// callbackNumber prefers the metadata override, then the account profile.
func (b *Builder) callbackNumber(ctx context.Context, msg *models.ScheduledMessage, f *metadata.Fields) (string, error) {
	if n := normalizePhone(f.CallbackNumber); n != "" {
		return n, nil
	}

	if b.accounts == nil {
		return "", ErrNoCallbackNumber
	}

	account, err := b.accounts.GetByID(ctx, msg.AccountID)
	if err != nil {
		return "", fmt.Errorf("failed to load account %s for callback number: %w", msg.AccountID, err)
	}

	if n := normalizePhone(account.Phone.String); account.Phone.Valid && n != "" {
		return n, nil
	}

	return "", fmt.Errorf("%w for account %s", ErrNoCallbackNumber, msg.AccountID)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func normalizePhone(s string) string {
	return strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

func subjectOf(msg *models.ScheduledMessage, f *metadata.Fields) string {
	if msg.Subject.Valid && msg.Subject.String != "" {
		return msg.Subject.String
	}
	return f.Subject
}

func targetingOf(f *metadata.Fields) string {
	if f.Targeting == "" {
		return DefaultTargeting
	}
	return strings.ToUpper(f.Targeting)
}

func buildText(msg *models.ScheduledMessage, f *metadata.Fields) Params {
	return TextParams{Subject: subjectOf(msg, f)}
}

func buildMMS(msg *models.ScheduledMessage, f *metadata.Fields) Params {
	images := f.Images()
	if len(images) == 0 {
		images = nil
	}
	return MMSParams{Subject: subjectOf(msg, f), ImageURLs: images}
}

func buildAlimtalk(_ *models.ScheduledMessage, f *metadata.Fields) Params {
	return AlimtalkParams{SenderKey: f.SenderKey, TemplateCode: f.TemplateCode, Buttons: f.Buttons}
}

func buildFriendtalk(_ *models.ScheduledMessage, f *metadata.Fields) Params {
	return FriendtalkParams{
		SenderKey: f.SenderKey,
		ImageURL:  f.ImageURL,
		ImageLink: f.ImageLink,
		Buttons:   f.Buttons,
		AdFlag:    f.AdFlag,
	}
}

func buildBrandMessage(_ *models.ScheduledMessage, f *metadata.Fields) Params {
	return BrandMessageParams{
		SenderKey:    f.SenderKey,
		TemplateCode: f.TemplateCode,
		Targeting:    targetingOf(f),
		Buttons:      f.Buttons,
	}
}

func buildBrandFree(_ *models.ScheduledMessage, f *metadata.Fields) Params {
	return BrandFreeParams{
		SenderKey: f.SenderKey,
		Targeting: targetingOf(f),
		Header:    f.Header,
		ImageURL:  f.ImageURL,
		Buttons:   f.Buttons,
		AdFlag:    f.AdFlag,
	}
}
