package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-ipc/lib/codec"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	backend, err := NewEphemeralOpenPGPBackend("Test User", "test@example.com")
	require.NoError(t, err)
	return New(backend)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	data := []byte("the signed region")

	sigToken, err := s.Sign(data)
	require.NoError(t, err)
	require.NotEmpty(t, sigToken)

	info, err := s.Verify(data, sigToken)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, "Test User", info.Name)
	assert.Equal(t, "test@example.com", info.Email)
	assert.GreaterOrEqual(t, len(info.KeyFingerprint), 32)
}

func TestVerifyTamperedData(t *testing.T) {
	s := newTestSigner(t)
	data := []byte("original data")

	sigToken, err := s.Sign(data)
	require.NoError(t, err)

	info, err := s.Verify([]byte("tampered data"), sigToken)
	require.NoError(t, err)
	assert.False(t, info.Valid)
}

func TestVerifyForeignKey(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	data := []byte("payload")

	sigToken, err := alice.Sign(data)
	require.NoError(t, err)

	// Bob's keyring does not contain Alice's key.
	info, err := bob.Verify(data, sigToken)
	require.NoError(t, err)
	assert.False(t, info.Valid)
}

func TestVerifyGarbageSignature(t *testing.T) {
	s := newTestSigner(t)

	_, err := s.Verify([]byte("data"), "not-a-token !!")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = s.Verify([]byte("data"), codec.Encode([]byte("not a signature packet")))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSignWithoutKey(t *testing.T) {
	s := New(&OpenPGPBackend{})
	_, err := s.Sign([]byte("data"))
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestParseReport(t *testing.T) {
	cases := []struct {
		name   string
		report string
		want   Info
	}{
		{
			name: "full gpg report",
			report: "gpg: Good signature from \"Jane Doe <jane@example.com>\"\n" +
				"Primary key fingerprint: 0123456789ABCDEF0123456789ABCDEF01234567\n",
			want: Info{
				Name:           "Jane Doe",
				Email:          "jane@example.com",
				KeyFingerprint: "0123456789ABCDEF0123456789ABCDEF01234567",
			},
		},
		{
			name:   "no identity",
			report: "VALIDSIG 0123456789abcdef0123456789abcdef01234567 2026-01-01\n",
			want: Info{
				Name:           Unknown,
				Email:          Unknown,
				KeyFingerprint: "0123456789abcdef0123456789abcdef01234567",
			},
		},
		{
			name:   "empty report",
			report: "",
			want:   Info{Name: Unknown, Email: Unknown, KeyFingerprint: Unknown},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseReport(tc.report)
			assert.Equal(t, tc.want, got)
		})
	}
}
