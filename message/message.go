// Package message implements the delimited, typed-token text codec used on
// the wire. A frame is topic|action|data...+ where | is the unit separator
// (0x1F) and + the record separator (0x1E). Scalar payload fields are encoded
// as typed tokens; structured payloads are JSON.
package message

import (
	"fmt"
	"strings"
)

// Message is one decoded inbound frame.
type Message struct {
	Topic  Topic
	Action Action
	Data   []string
	Raw    string
}

// Build encodes a single outbound frame.
func Build(topic Topic, action Action, data ...string) string {
	parts := make([]string, 0, 2+len(data))
	parts = append(parts, string(topic), string(action))
	parts = append(parts, data...)
	return strings.Join(parts, PartSeparator) + MessageSeparator
}

// Parse decodes one frame (without its trailing message separator).
func Parse(part string) (*Message, error) {
	fields := strings.Split(part, PartSeparator)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return nil, fmt.Errorf("malformed message %q", part)
	}
	return &Message{
		Topic:  Topic(fields[0]),
		Action: Action(fields[1]),
		Data:   fields[2:],
		Raw:    part,
	}, nil
}

// Humanize rewrites a frame's control separators as printable characters for
// logs and golden files.
func Humanize(frame string) string {
	frame = strings.ReplaceAll(frame, PartSeparator, "|")
	return strings.ReplaceAll(frame, MessageSeparator, "+")
}

// ParseAll decodes a buffer of zero or more complete frames. Malformed frames
// are skipped; the first parse failure is reported alongside the messages
// that did decode so a bad frame never stalls the stream.
func ParseAll(raw string) ([]*Message, error) {
	var firstErr error
	var msgs []*Message
	for _, part := range strings.Split(raw, MessageSeparator) {
		if part == "" {
			continue
		}
		msg, err := Parse(part)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, firstErr
}
