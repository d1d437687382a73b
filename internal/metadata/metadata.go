// Package metadata normalises the free-form metadata bag stored with
// messages and transactions into canonical typed structs.
//
// Stored rows mix camelCase and snake_case keys for the same concept and
// keep lists either as native JSON arrays or as JSON-encoded strings. Both
// forms are accepted here and nowhere else.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// ErrInvalidFlag marks a ledger flag that is present but unreadable.
var ErrInvalidFlag = errors.New("invalid ledger flag")

// Button is a chat-platform action button.
type Button struct {
	Name          string `mapstructure:"name" json:"name" validate:"required"`
	Type          string `mapstructure:"type" json:"type" validate:"required,oneof=WL AL BK MD DS"`
	URLMobile     string `mapstructure:"urlMobile" json:"url_mobile,omitempty" validate:"required_if=Type WL,omitempty,url"`
	URLPC         string `mapstructure:"urlPc" json:"url_pc,omitempty" validate:"omitempty,url"`
	SchemeIOS     string `mapstructure:"schemeIos" json:"scheme_ios,omitempty" validate:"required_if=Type AL"`
	SchemeAndroid string `mapstructure:"schemeAndroid" json:"scheme_android,omitempty" validate:"required_if=Type AL"`
}

// Fields is the canonical view of message metadata.
type Fields struct {
	Channel        string   `mapstructure:"channel"`
	ChannelType    string   `mapstructure:"channelType"`
	SenderKey      string   `mapstructure:"senderKey"`
	TemplateCode   string   `mapstructure:"templateCode"`
	CallbackNumber string   `mapstructure:"callbackNumber"`
	Subject        string   `mapstructure:"subject"`
	ImageURLs      []string `mapstructure:"imageUrls"`
	ImageURL       string   `mapstructure:"imageUrl"`
	ImageLink      string   `mapstructure:"imageLink"`
	Buttons        []Button `mapstructure:"buttons"`
	Targeting      string   `mapstructure:"targeting"`
	Header         string   `mapstructure:"header"`
	AdFlag         bool     `mapstructure:"adFlag"`
}

// ChannelTag returns the explicit channel tag, if any.
func (f *Fields) ChannelTag() string {
	if f.Channel != "" {
		return f.Channel
	}
	return f.ChannelType
}

// Images returns the non-empty image URLs.
func (f *Fields) Images() []string {
	out := make([]string, 0, len(f.ImageURLs))
	for _, u := range f.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// TransactionFlags are the ledger-relevant metadata flags of a transaction.
// RewardInvalid and TypeInvalid mark flags that were present but could not
// be read, so the ledger can refuse to guess.
type TransactionFlags struct {
	IsReward        bool
	TransactionType string
	MessageID       string

	RewardInvalid bool
	TypeInvalid   bool
}

// Ledger metadata keys in their canonical spelling.
const (
	keyIsReward        = "isReward"
	keyTransactionType = "transactionType"
	keyMessageID       = "messageId"
)

// Decode normalises message metadata.
func Decode(m models.Metadata) (*Fields, error) {
	var out Fields
	if err := decode(m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeTransaction reads the ledger flags one key at a time, so a malformed
// unrelated key never hides a valid flag. The error joins every flag that
// was present but unreadable; the returned flags are always usable.
func DecodeTransaction(m models.Metadata) (*TransactionFlags, error) {
	var (
		flags TransactionFlags
		errs  []error
	)

	if err := decodeKey(m, keyIsReward, &flags.IsReward); err != nil {
		flags.RewardInvalid = true
		errs = append(errs, err)
	}
	if err := decodeKey(m, keyTransactionType, &flags.TransactionType); err != nil {
		flags.TypeInvalid = true
		errs = append(errs, err)
	}
	if err := decodeKey(m, keyMessageID, &flags.MessageID); err != nil {
		errs = append(errs, err)
	}

	return &flags, errors.Join(errs...)
}

// decodeKey weakly decodes the value stored under key (any spelling) into
// out. A missing key leaves out untouched.
func decodeKey(m models.Metadata, key string, out any) error {
	value, ok := lookupKey(m, key)
	if !ok || value == nil {
		return nil
	}
	if err := mapstructure.WeakDecode(value, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFlag, key, err)
	}
	return nil
}

// lookupKey prefers the exact key, then the lexically first key with the
// same canonical form.
func lookupKey(m models.Metadata, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}

	want := canonicalKey(key)
	candidates := make([]string, 0, 1)
	for k := range m {
		if canonicalKey(k) == want {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Strings(candidates)
	return m[candidates[0]], true
}

func decode(m models.Metadata, out any) error {
	if len(m) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		MatchName:        matchName,
		DecodeHook:       jsonStringToSliceHook,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(m)); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	return nil
}

// matchName is only consulted when the exact camelCase key is absent, so a
// camelCase key always wins over its snake_case twin.
func matchName(mapKey, fieldName string) bool {
	return canonicalKey(mapKey) == canonicalKey(fieldName)
}

func canonicalKey(s string) string {
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToLower(s)
}

func jsonStringToSliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
		return data, nil
	}

	s := strings.TrimSpace(reflect.ValueOf(data).String())
	if s == "" {
		return []any{}, nil
	}

	if strings.HasPrefix(s, "[") {
		var out []any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid encoded list: %w", err)
		}
		return out, nil
	}

	return []any{s}, nil
}
