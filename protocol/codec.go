// File: protocol/codec.go
// Package protocol implements the relay wire codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Inbound:  "<destination-token>~<content>" optionally followed by CR/LF/NUL.
// Outbound: raw content bytes, no envelope.

package protocol

import (
	"bytes"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/momentics/miki/api"
)

// Delimiter separates the destination token from the content.
const Delimiter = '~'

// greetingPrefix starts the line announcing a client's own token.
const greetingPrefix = "token:"

// Decode parses one inbound read into a Message from the given sender.
// Only the first delimiter splits; the content may contain more of them.
func Decode(from api.Token, raw []byte, at time.Time) (api.Message, error) {
	idx := bytes.IndexByte(raw, Delimiter)
	if idx < 0 {
		return api.Message{}, &api.ProtocolError{Reason: "missing delimiter", Input: preview(raw)}
	}
	to, err := ParseToken(string(raw[:idx]))
	if err != nil {
		return api.Message{}, &api.ProtocolError{Reason: "bad destination", Input: preview(raw), Err: err}
	}
	body := raw[idx+1:]
	if !utf8.Valid(body) {
		return api.Message{}, &api.ProtocolError{Reason: "content is not valid UTF-8", Input: preview(raw)}
	}
	return api.NewMessage(from, to, StripTerminators(string(body)), at), nil
}

// ParseToken parses the decimal form of a client token.
func ParseToken(s string) (api.Token, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	t := api.Token(v)
	if t.Reserved() {
		return 0, api.ErrReservedToken
	}
	return t, nil
}

// StripTerminators removes any run of trailing CR, LF and NUL characters.
func StripTerminators(s string) string {
	return strings.TrimRight(s, "\r\n\x00")
}

// Encode builds the client-side line addressing content to a token.
func Encode(to api.Token, content string) []byte {
	buf := make([]byte, 0, len(content)+24)
	buf = strconv.AppendUint(buf, uint64(to), 10)
	buf = append(buf, Delimiter)
	buf = append(buf, content...)
	return append(buf, '\n')
}

// Greeting is the line sent to a freshly accepted client carrying its token.
func Greeting(t api.Token) []byte {
	buf := make([]byte, 0, len(greetingPrefix)+21)
	buf = append(buf, greetingPrefix...)
	buf = strconv.AppendUint(buf, uint64(t), 10)
	return append(buf, '\n')
}

// ParseGreeting extracts the token from a greeting line.
func ParseGreeting(line string) (api.Token, error) {
	line = StripTerminators(line)
	if !strings.HasPrefix(line, greetingPrefix) {
		return 0, &api.ProtocolError{Reason: "not a greeting", Input: line}
	}
	t, err := ParseToken(strings.TrimPrefix(line, greetingPrefix))
	if err != nil {
		return 0, &api.ProtocolError{Reason: "bad greeting token", Input: line, Err: err}
	}
	return t, nil
}

// preview trims raw input for error reports.
func preview(raw []byte) string {
	const max = 64
	s := StripTerminators(string(raw))
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
