package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		[]byte("with whitespace \t\n\r and more"),
		{0x00, 0x01, 0xff, 0xfe, 0x80},
		bytes.Repeat([]byte{0xab}, 4096),
		[]byte(`{"nested":"json \"quoted\""}`),
	}
	for _, c := range cases {
		token := Encode(c)
		got, err := Decode(token)
		if err != nil {
			t.Errorf("Decode(Encode(%q)) failed: %v", c, err)
			continue
		}
		if !bytes.Equal(got, c) && !(len(got) == 0 && len(c) == 0) {
			t.Errorf("round trip mismatch: got %q, want %q", got, c)
		}
	}
}

func TestTokenAlphabetIsJSONSafe(t *testing.T) {
	token := Encode([]byte{0x00, 0x3f, 0x7f, 0xff, 0xfb, 0xef})
	for _, r := range token {
		if r == '"' || r == '\\' || r < 0x20 {
			t.Errorf("token contains JSON-unsafe character %q", r)
		}
		if r == ' ' || r == '\t' || r == '\n' {
			t.Errorf("token contains whitespace %q", r)
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\") failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decode(\"\") = %q, want empty", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"not base64!",
		"contains space ",
		"tab\tseparated",
		"a", // invalid length
		strings.Repeat("+", 8),
	}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("Decode(%q) should have failed", c)
		}
	}
}
