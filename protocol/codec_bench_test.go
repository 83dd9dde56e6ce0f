package protocol

import (
	"testing"

	"github.com/momentics/miki/api"
)

// BenchmarkDecode measures parsing of a typical inbound line.
func BenchmarkDecode(b *testing.B) {
	raw := []byte("1234~the quick brown fox jumps over the lazy dog\r\n")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(7, raw, at); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Encode(api.Token(i+1), "the quick brown fox")
	}
}
