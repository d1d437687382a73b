// Package channel resolves the delivery channel of a scheduled message and
// prices it.
package channel

import "errors"

var (
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrNoPrice            = errors.New("no price configured for channel")
)
