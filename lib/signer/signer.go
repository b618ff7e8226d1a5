package signer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-i2p/go-ipc/lib/codec"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

var (
	// ErrSignerUnavailable means no signing identity is configured or the
	// backend failed to produce a signature.
	ErrSignerUnavailable = oops.Errorf("signer unavailable")
	// ErrBadSignature means the signature token is structurally
	// unparseable. From Verify, a well-formed signature that merely fails
	// to verify is reported through Info.Valid instead; envelope
	// validation returns ErrBadSignature for that case too.
	ErrBadSignature = oops.Errorf("bad signature")
)

// Unknown is reported for identity fields the verifier's report did not
// yield.
const Unknown = "unknown"

var (
	// A contiguous hex run of at least 32 characters is taken as the key
	// fingerprint. Backends emit machine lines (VALIDSIG et al.) where the
	// fingerprint is unspaced.
	fingerprintRe = regexp.MustCompile(`[0-9A-Fa-f]{32,}`)
	// The signer identity appears quoted in the report as `"Name <email>"`.
	identityRe = regexp.MustCompile(`"([^"<]+)<([^>]+)>"`)
)

// Info is the verifier's judgement on a detached signature plus whatever
// identity the backend's report carried.
type Info struct {
	Valid          bool
	KeyFingerprint string
	Email          string
	Name           string
}

// Backend produces and checks detached signatures. Verify returns the
// backend's human-readable report alongside the verdict; identity
// extraction happens in the Signer, not the backend.
type Backend interface {
	// Sign produces a detached signature over data using the backend's
	// default identity.
	Sign(data []byte) ([]byte, error)
	// Verify checks sig over data. ok is false for a well-formed signature
	// that does not verify; err is reserved for signatures the backend
	// cannot parse at all.
	Verify(data, sig []byte) (ok bool, report string, err error)
}

// Signer wraps a Backend with token encoding and report parsing. All
// backend calls are serialized: backends may hold exclusive resources
// (agent sockets, smartcards).
type Signer struct {
	mu      sync.Mutex
	backend Backend
}

func New(backend Backend) *Signer {
	return &Signer{backend: backend}
}

// Sign produces an encoded detached signature over data.
func (s *Signer) Sign(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, err := s.backend.Sign(data)
	if err != nil {
		log.WithError(err).Error("Backend failed to sign")
		return "", fmt.Errorf("%w: %v", ErrSignerUnavailable, err)
	}
	log.WithField("sig_bytes", len(sig)).Debug("Produced detached signature")
	return codec.Encode(sig), nil
}

// Verify checks sigToken over data and extracts the signer identity from
// the backend's report. A failing signature still yields an Info with
// Valid=false and whatever identity the report carried; only a signature
// the backend cannot parse at all returns ErrBadSignature.
func (s *Signer) Verify(data []byte, sigToken string) (Info, error) {
	sig, err := codec.Decode(sigToken)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, report, err := s.backend.Verify(data, sig)
	if err != nil {
		log.WithError(err).Debug("Backend could not parse signature")
		return Info{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	info := parseReport(report)
	info.Valid = ok
	log.WithFields(logger.Fields{
		"valid":       info.Valid,
		"fingerprint": info.KeyFingerprint,
	}).Debug("Verified detached signature")
	return info, nil
}

// parseReport pulls the key fingerprint and `Name <email>` identity out of
// the verifier's report text. Fields the report does not yield are set to
// Unknown.
func parseReport(report string) Info {
	info := Info{
		KeyFingerprint: Unknown,
		Email:          Unknown,
		Name:           Unknown,
	}
	if m := fingerprintRe.FindString(report); m != "" {
		info.KeyFingerprint = m
	}
	if m := identityRe.FindStringSubmatch(report); m != nil {
		info.Name = strings.TrimSpace(m[1])
		info.Email = strings.TrimSpace(m[2])
	}
	return info
}
