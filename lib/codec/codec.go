package codec

import (
	"fmt"

	"github.com/go-i2p/common/base64"
	"github.com/samber/oops"
)

// ErrMalformedToken is returned when a token contains characters outside
// the encoding alphabet or has an invalid length.
var ErrMalformedToken = oops.Errorf("malformed token")

// Encode converts arbitrary bytes into a token safe to embed in JSON
// string fields and line-delimited queue items. The alphabet is the I2P
// base64 variant, which contains no whitespace and no characters that
// need JSON escaping.
func Encode(data []byte) string {
	return base64.EncodeToString(data)
}

// Decode is the inverse of Encode. Decode(Encode(x)) == x for every byte
// string x, including the empty one.
func Decode(token string) ([]byte, error) {
	if token == "" {
		return []byte{}, nil
	}
	data, err := base64.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return data, nil
}
