package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-ipc/lib/codec"
	"github.com/go-i2p/go-ipc/lib/signer"
	"github.com/go-i2p/go-ipc/lib/util"
)

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	backend, err := signer.NewEphemeralOpenPGPBackend("Envelope Test", "envelope@example.com")
	require.NoError(t, err)
	return signer.New(backend)
}

func TestRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	before := time.Now().Unix()

	token, err := New(s, "svc/a", "svc/b", []byte("hello"), "")
	require.NoError(t, err)

	e, err := Parse(token)
	require.NoError(t, err)

	source, err := e.Source()
	require.NoError(t, err)
	assert.Equal(t, "svc/a", source)

	destination, err := e.Destination()
	require.NoError(t, err)
	assert.Equal(t, "svc/b", destination)

	data, err := e.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	version, err := e.Version()
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, version)

	user, err := e.User()
	require.NoError(t, err)
	assert.Equal(t, util.CurrentUser(), user)

	ts, err := e.Timestamp()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, time.Now().Unix())

	require.NoError(t, e.Validate(s))
}

func TestTopicPresentWhenPublished(t *testing.T) {
	s := newTestSigner(t)

	token, err := New(s, "pub", "sub", []byte("payload"), "t/x")
	require.NoError(t, err)

	e, err := Parse(token)
	require.NoError(t, err)

	topic, err := e.Topic()
	require.NoError(t, err)
	assert.Equal(t, "t/x", topic)
}

func TestEmptyTopicIsOmitted(t *testing.T) {
	s := newTestSigner(t)

	token, err := New(s, "a", "b", []byte("x"), "")
	require.NoError(t, err)

	e, err := Parse(token)
	require.NoError(t, err)

	_, err = e.Topic()
	assert.ErrorIs(t, err, ErrFieldMissing)

	// The field must be absent from the inner JSON, not an empty string.
	innerJSON, err := codec.Decode(e.Message())
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(innerJSON, &raw))
	_, present := raw["topic"]
	assert.False(t, present, "empty topic must not be serialized")
}

func TestWhitespaceDataSurvives(t *testing.T) {
	s := newTestSigner(t)
	payload := []byte("  leading, trailing  \n\ttabs\r\n")

	token, err := New(s, "a", "b", payload, "")
	require.NoError(t, err)

	e, err := Parse(token)
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NoError(t, e.Validate(s))
}

func TestBinaryDataSurvives(t *testing.T) {
	s := newTestSigner(t)
	payload := []byte{0x00, 0xff, 0x0a, 0x0d, 0x22, 0x5c, 0x80}

	token, err := New(s, "a", "b", payload, "")
	require.NoError(t, err)

	e, err := Parse(token)
	require.NoError(t, err)
	data, err := e.Data()
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

// reEncode rebuilds an envelope token from a mutated outer object.
func reEncode(t *testing.T, outer map[string]string) string {
	t.Helper()
	raw, err := json.Marshal(outer)
	require.NoError(t, err)
	return codec.Encode(raw)
}

// decodeOuter pulls the outer object out of a token for tampering.
func decodeOuter(t *testing.T, token string) map[string]string {
	t.Helper()
	raw, err := codec.Decode(token)
	require.NoError(t, err)
	var outer map[string]string
	require.NoError(t, json.Unmarshal(raw, &outer))
	return outer
}

func TestTamperedSignatureDetected(t *testing.T) {
	s := newTestSigner(t)

	token, err := New(s, "a", "b", []byte("hello"), "")
	require.NoError(t, err)

	outer := decodeOuter(t, token)
	sig := []rune(outer["signature"])
	if sig[10] == 'A' {
		sig[10] = 'B'
	} else {
		sig[10] = 'A'
	}
	outer["signature"] = string(sig)

	e, err := Parse(reEncode(t, outer))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Validate(s), signer.ErrBadSignature)
}

func TestTamperedInnerDetected(t *testing.T) {
	s := newTestSigner(t)

	token, err := New(s, "a", "b", []byte("hello"), "")
	require.NoError(t, err)

	outer := decodeOuter(t, token)
	innerJSON, err := codec.Decode(outer["message"])
	require.NoError(t, err)

	var inner map[string]any
	require.NoError(t, json.Unmarshal(innerJSON, &inner))
	inner["source"] = "mallory"
	mutated, err := json.Marshal(inner)
	require.NoError(t, err)
	outer["message"] = codec.Encode(mutated)

	e, err := Parse(reEncode(t, outer))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Validate(s), signer.ErrBadSignature)
}

func TestForgedFutureVersion(t *testing.T) {
	s := newTestSigner(t)

	// A validly signed inner with version 2 must gate on the version, not
	// the signature.
	inner := map[string]any{
		"version":     2,
		"source":      "a",
		"destination": "b",
		"user":        "mallory",
		"timestamp":   time.Now().Unix(),
		"data":        codec.Encode([]byte("x")),
	}
	innerJSON, err := json.Marshal(inner)
	require.NoError(t, err)
	messageToken := codec.Encode(innerJSON)

	sigToken, err := s.Sign([]byte(messageToken))
	require.NoError(t, err)

	token := reEncode(t, map[string]string{
		"message":   messageToken,
		"signature": sigToken,
	})

	e, err := Parse(token)
	require.NoError(t, err)
	err = e.Validate(s)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, signer.ErrBadSignature)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("not a token !!")
	assert.ErrorIs(t, err, codec.ErrMalformedToken)

	_, err = Parse(codec.Encode([]byte("not json")))
	assert.ErrorIs(t, err, ErrMalformedJSON)

	// Valid outer JSON whose message layer is not JSON.
	token := codec.Encode([]byte(`{"message":"` + codec.Encode([]byte("not json")) + `","signature":""}`))
	_, err = Parse(token)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestAccessorsOnSparseEnvelope(t *testing.T) {
	s := newTestSigner(t)

	inner := map[string]any{"version": 1}
	innerJSON, err := json.Marshal(inner)
	require.NoError(t, err)
	messageToken := codec.Encode(innerJSON)
	sigToken, err := s.Sign([]byte(messageToken))
	require.NoError(t, err)
	token := reEncode(t, map[string]string{"message": messageToken, "signature": sigToken})

	e, err := Parse(token)
	require.NoError(t, err)

	_, err = e.Source()
	assert.ErrorIs(t, err, ErrFieldMissing)
	_, err = e.Destination()
	assert.ErrorIs(t, err, ErrFieldMissing)
	_, err = e.User()
	assert.ErrorIs(t, err, ErrFieldMissing)
	_, err = e.Timestamp()
	assert.ErrorIs(t, err, ErrFieldMissing)
	_, err = e.Data()
	assert.ErrorIs(t, err, ErrFieldMissing)

	version, err := e.Version()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), version)
}

func TestSignerIdentityAccessors(t *testing.T) {
	s := newTestSigner(t)

	token, err := New(s, "a", "b", []byte("x"), "")
	require.NoError(t, err)
	e, err := Parse(token)
	require.NoError(t, err)

	name, err := e.SignerName(s)
	require.NoError(t, err)
	assert.Equal(t, "Envelope Test", name)

	email, err := e.SignerEmail(s)
	require.NoError(t, err)
	assert.Equal(t, "envelope@example.com", email)

	key, err := e.SignerKey(s)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(key), 32)
}
