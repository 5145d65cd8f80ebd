// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram"
)

const (
	minCallbackBytes = 1
	maxCallbackBytes = 64
)

// CallbackData is the structured form of callback_data:
//
//	action|key=value&key2=value2
//
// Action, keys and values are percent-encoded per RFC 3986 and the encoded
// string must be 1..64 bytes long.
type CallbackData struct {
	Action string
	Params map[string]string
}

func NewCallbackData(action string) *CallbackData {
	return &CallbackData{Action: action, Params: map[string]string{}}
}

// With sets a parameter. nil becomes "", booleans become "1" or "0".
func (c *CallbackData) With(name string, value any) *CallbackData {
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	switch v := value.(type) {
	case nil:
		c.Params[name] = ""
	case bool:
		if v {
			c.Params[name] = "1"
		} else {
			c.Params[name] = "0"
		}
	case string:
		c.Params[name] = v
	default:
		c.Params[name] = fmt.Sprint(v)
	}
	return c
}

func (c *CallbackData) Encode() (string, error) {
	return EncodeCallbackData(c.Action, c.Params)
}

// EncodeCallbackData renders action and params with keys in sorted order.
func EncodeCallbackData(action string, params map[string]string) (string, error) {
	if action == "" {
		return "", errors.New("callback data action must not be empty")
	}

	var b strings.Builder
	b.WriteString(rawURLEncode(action))

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			if k == "" {
				return "", errors.New("callback data param name must not be empty")
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('|')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(rawURLEncode(k))
			b.WriteByte('=')
			b.WriteString(rawURLEncode(params[k]))
		}
	}

	out := b.String()
	if err := checkCallbackSize(out); err != nil {
		return "", err
	}
	return out, nil
}

// DecodeCallbackData parses callback_data produced by EncodeCallbackData.
// Empty pairs are skipped; a pair without "=" has an empty value.
func DecodeCallbackData(data string) (string, map[string]string, error) {
	if err := checkCallbackSize(data); err != nil {
		return "", nil, err
	}

	rawAction, query, _ := strings.Cut(data, "|")
	action, err := url.PathUnescape(rawAction)
	if err != nil {
		return "", nil, errors.Wrap(err, "decoding callback action")
	}
	if action == "" {
		return "", nil, errors.New("callback data action is missing")
	}

	params := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.PathUnescape(rawKey)
		if err != nil {
			return "", nil, errors.Wrap(err, "decoding callback param name")
		}
		if key == "" {
			return "", nil, errors.New("callback data param name is empty")
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return "", nil, errors.Wrapf(err, "decoding callback param %q", key)
		}
		params[key] = value
	}
	return action, params, nil
}

func checkCallbackSize(s string) error {
	if n := len(s); n < minCallbackBytes || n > maxCallbackBytes {
		return errors.Wrapf(hybridgram.ErrCallbackDataSize, "got %d bytes", n)
	}
	return nil
}

// rawURLEncode escapes everything except the RFC 3986 unreserved set.
func rawURLEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
