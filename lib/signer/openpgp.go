package signer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/samber/oops"
)

var ErrNoSigningKey = oops.Errorf("keyring has no usable signing key")

// OpenPGPBackend signs and verifies in-process against an OpenPGP keyring.
// It synthesizes a gpg-style report so the Signer's identity extraction
// works the same whether signatures come from this backend or from an
// external gpg.
type OpenPGPBackend struct {
	keyring openpgp.EntityList
	signing *openpgp.Entity // first entity with a usable private key, may be nil
}

// NewOpenPGPBackend loads a keyring file (binary or armored). Verification
// uses every public key in the ring; signing uses the first entity that
// carries an unencrypted private key.
func NewOpenPGPBackend(keyringPath string) (*OpenPGPBackend, error) {
	f, err := os.Open(keyringPath)
	if err != nil {
		return nil, oops.Wrapf(err, "open keyring %s", keyringPath)
	}
	defer f.Close()

	ring, err := openpgp.ReadKeyRing(f)
	if err != nil {
		if _, serr := f.Seek(0, 0); serr != nil {
			return nil, oops.Wrapf(serr, "rewind keyring %s", keyringPath)
		}
		ring, err = openpgp.ReadArmoredKeyRing(f)
		if err != nil {
			return nil, oops.Wrapf(err, "read keyring %s", keyringPath)
		}
	}
	log.WithField("entities", len(ring)).Debug("Loaded OpenPGP keyring")
	return &OpenPGPBackend{keyring: ring, signing: firstSigningEntity(ring)}, nil
}

// NewEphemeralOpenPGPBackend generates a fresh keypair held only in
// memory. Intended for tests and anonymous endpoints that need a
// throwaway identity.
func NewEphemeralOpenPGPBackend(name, email string) (*OpenPGPBackend, error) {
	entity, err := openpgp.NewEntity(name, "", email, nil)
	if err != nil {
		return nil, oops.Wrapf(err, "generate ephemeral entity")
	}
	return &OpenPGPBackend{
		keyring: openpgp.EntityList{entity},
		signing: entity,
	}, nil
}

func firstSigningEntity(ring openpgp.EntityList) *openpgp.Entity {
	for _, e := range ring {
		if e.PrivateKey != nil && !e.PrivateKey.Encrypted {
			return e
		}
	}
	return nil
}

func (b *OpenPGPBackend) Sign(data []byte) ([]byte, error) {
	if b.signing == nil {
		return nil, ErrNoSigningKey
	}
	var buf bytes.Buffer
	if err := openpgp.DetachSign(&buf, b.signing, bytes.NewReader(data), nil); err != nil {
		return nil, oops.Wrapf(err, "detach sign")
	}
	return buf.Bytes(), nil
}

func (b *OpenPGPBackend) Verify(data, sig []byte) (bool, string, error) {
	signedBy, err := openpgp.CheckDetachedSignature(
		b.keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		if signedBy == nil && !looksLikeSignature(sig) {
			// Not even a signature packet; the caller distinguishes this
			// from a verification failure.
			return false, "", oops.Wrapf(err, "unparseable signature")
		}
		return false, badReport(signedBy), nil
	}
	return true, goodReport(signedBy), nil
}

// looksLikeSignature does a cheap structural check: an OpenPGP packet
// header with a signature packet tag (2, old or new format).
func looksLikeSignature(sig []byte) bool {
	if len(sig) < 2 || sig[0]&0x80 == 0 {
		return false
	}
	if sig[0]&0x40 != 0 {
		return sig[0]&0x3f == 2
	}
	return (sig[0]>>2)&0x0f == 2
}

func goodReport(e *openpgp.Entity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "gpg: Signature made %s\n", time.Now().UTC().Format(time.ANSIC))
	fmt.Fprintf(&sb, "gpg: Good signature from %q\n", primaryIdentity(e))
	fmt.Fprintf(&sb, "Primary key fingerprint: %s\n", fingerprintOf(e))
	return sb.String()
}

func badReport(e *openpgp.Entity) string {
	if e == nil {
		return "gpg: BAD signature\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "gpg: BAD signature from %q\n", primaryIdentity(e))
	fmt.Fprintf(&sb, "Primary key fingerprint: %s\n", fingerprintOf(e))
	return sb.String()
}

func primaryIdentity(e *openpgp.Entity) string {
	if e == nil {
		return ""
	}
	for _, id := range e.Identities {
		if id.UserId != nil {
			return fmt.Sprintf("%s <%s>", id.UserId.Name, id.UserId.Email)
		}
		return id.Name
	}
	return ""
}

func fingerprintOf(e *openpgp.Entity) string {
	if e == nil || e.PrimaryKey == nil {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint))
}
