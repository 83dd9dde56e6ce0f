package protocol

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/miki/api"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecode(t *testing.T) {
	cases := []struct {
		raw     string
		to      api.Token
		content string
	}{
		{"2~hello", 2, "hello"},
		{"2~hello\n", 2, "hello"},
		{"2~hello\r\n", 2, "hello"},
		{"2~hello\r\n\x00\x00\x00", 2, "hello"},
		{"15~a~b~c\n", 15, "a~b~c"},
		{"3~", 3, ""},
		{"4~  spaced  \n", 4, "  spaced  "},
		{"5~привет\n", 5, "привет"},
	}
	for _, c := range cases {
		msg, err := Decode(1, []byte(c.raw), at)
		require.NoError(t, err, c.raw)
		assert.Equal(t, api.Token(1), msg.From)
		assert.Equal(t, c.to, msg.To, c.raw)
		assert.Equal(t, c.content, msg.Content, c.raw)
		assert.Equal(t, at, msg.Timestamp)
	}
}

func TestDecodeProtocolErrors(t *testing.T) {
	cases := []struct {
		raw    string
		reason string
	}{
		{"garbage", "missing delimiter"},
		{"garbage\n", "missing delimiter"},
		{"~hello", "bad destination"},
		{"abc~hello", "bad destination"},
		{"-1~hello", "bad destination"},
		{"0~hello", "bad destination"},
		{"18446744073709551615~hello", "bad destination"},
		{"18446744073709551616~hello", "bad destination"},
		{"2~\xff\xfe", "content is not valid UTF-8"},
	}
	for _, c := range cases {
		_, err := Decode(1, []byte(c.raw), at)
		var perr *api.ProtocolError
		require.ErrorAs(t, err, &perr, c.raw)
		assert.Equal(t, c.reason, perr.Reason, c.raw)
		assert.Equal(t, api.SeverityIgnorable, api.Classify(err))
	}
}

func TestDecodeReservedToken(t *testing.T) {
	_, err := Decode(1, []byte("0~x"), at)
	assert.ErrorIs(t, err, api.ErrReservedToken)
}

func TestStripTerminators(t *testing.T) {
	assert.Equal(t, "x", StripTerminators("x\n\r\x00\n"))
	assert.Equal(t, "x\ny", StripTerminators("x\ny\n"))
	assert.Equal(t, "", StripTerminators("\r\n"))
}

func TestEncodeRoundTrip(t *testing.T) {
	line := Encode(9, "hi~there")
	assert.Equal(t, "9~hi~there\n", string(line))
	msg, err := Decode(4, line, at)
	require.NoError(t, err)
	assert.Equal(t, api.Token(9), msg.To)
	assert.Equal(t, "hi~there", msg.Content)
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "token:12\n", string(Greeting(12)))
	tok, err := ParseGreeting("token:12\r\n")
	require.NoError(t, err)
	assert.Equal(t, api.Token(12), tok)

	_, err = ParseGreeting("hello")
	assert.Error(t, err)
	_, err = ParseGreeting("token:0")
	assert.ErrorIs(t, err, api.ErrReservedToken)
}

func TestProtocolErrorInputKeepsRunesWhole(t *testing.T) {
	// 63 ASCII bytes then a two-byte rune straddling the cut
	raw := strings.Repeat("x", 63) + "ж" + strings.Repeat("y", 10)
	_, err := Decode(1, []byte(raw), at)
	var perr *api.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.True(t, utf8.ValidString(perr.Input))
	assert.Equal(t, strings.Repeat("x", 63)+"...", perr.Input)
}
