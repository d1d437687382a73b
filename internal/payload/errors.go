package payload

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidField     = errors.New("invalid field")
	ErrNoCallbackNumber = errors.New("no callback number available")
)

// MissingFieldError lists channel-mandatory fields absent from a message.
type MissingFieldError struct {
	Channel models.ChannelType
	Fields  []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field for %s: %s", e.Channel, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// InvalidFieldError reports fields that are present but malformed.
type InvalidFieldError struct {
	Channel models.ChannelType
	Fields  map[string]string
}

func (e *InvalidFieldError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" ("+e.Fields[field]+")")
	}
	return fmt.Sprintf("invalid field for %s: %s", e.Channel, strings.Join(parts, ", "))
}

func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrInvalidField
}
