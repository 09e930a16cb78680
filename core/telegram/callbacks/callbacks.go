// Package callbacks decodes inline button data. Telebot encodes a button as
// "\f<unique>|<payload>"; payloads built by this bot join fields with "|".
package callbacks

import (
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates fields inside a payload.
const Sep = "|"

// ErrMalformed reports a payload that does not have the expected shape.
var ErrMalformed = errors.New("callbacks: malformed payload")

// ParseCallbackData splits raw button data into the unique key and payload.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ = strings.Cut(raw, Sep)
	return strings.TrimSpace(unique), payload
}

// CallbackPayload returns the payload of the pressed button. It reads Data
// because Unique is empty for presses routed through tele.OnCallback.
func CallbackPayload(c tele.Context) string {
	_, payload := ParseCallbackData(c.Callback())
	return payload
}

// PayloadInt parses a payload holding a single integer.
func PayloadInt(c tele.Context) (int, error) {
	n, err := strconv.Atoi(CallbackPayload(c))
	if err != nil {
		return 0, ErrMalformed
	}
	return n, nil
}

// PayloadFields splits the payload into exactly n non-empty fields.
func PayloadFields(c tele.Context, n int) ([]string, error) {
	parts := strings.Split(CallbackPayload(c), Sep)
	if len(parts) != n {
		return nil, ErrMalformed
	}
	for _, p := range parts {
		if p == "" {
			return nil, ErrMalformed
		}
	}
	return parts, nil
}
