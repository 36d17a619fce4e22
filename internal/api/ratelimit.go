package api

import (
	"errors"
	"strings"

	"github.com/dunglas/httpsfv"
)

// RateLimit holds the backend's throttle state as reported in the
// RateLimit response header (RFC 8941 Dictionary).
//
// Example: limit=100, remaining=0, reset=30
type RateLimit struct {
	Limit     int64
	Remaining int64
	Reset     int64 // seconds until the window resets
}

// ParseRateLimit parses a RateLimit header value. Returns (nil, nil)
// when the header is absent.
func ParseRateLimit(header string) (*RateLimit, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, errors.New("invalid RateLimit header")
	}

	rl := &RateLimit{}
	rl.Limit = dictInt(dict, "limit")
	rl.Remaining = dictInt(dict, "remaining")
	rl.Reset = dictInt(dict, "reset")
	return rl, nil
}

// dictInt extracts an integer dictionary member, 0 when absent or not
// an integer.
func dictInt(dict *httpsfv.Dictionary, key string) int64 {
	member, ok := dict.Get(key)
	if !ok {
		return 0
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return 0
	}
	v, ok := item.Value.(int64)
	if !ok {
		return 0
	}
	return v
}
