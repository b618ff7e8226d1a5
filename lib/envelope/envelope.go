package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-i2p/go-ipc/lib/codec"
	"github.com/go-i2p/go-ipc/lib/signer"
	"github.com/go-i2p/go-ipc/lib/util"
)

var log = logger.GetGoI2PLogger()

// ProtocolVersion is the only inner-message version this implementation
// produces and accepts.
const ProtocolVersion uint32 = 1

var (
	// ErrMalformedJSON means an envelope layer decoded fine but did not
	// parse as JSON.
	ErrMalformedJSON = oops.Errorf("malformed envelope json")
	// ErrFieldMissing means the requested inner-message field is absent.
	ErrFieldMissing = oops.Errorf("field missing")
	// ErrUnsupportedVersion means the signature verifies but the version
	// field is not ProtocolVersion. It is a plain errors.New value, so
	// errors.Is never matches it against signer.ErrBadSignature.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// outerMessage is the signed container. Both fields are codec tokens.
type outerMessage struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// innerMessage is the structured record inside the signed region. Pointer
// fields distinguish "absent" from "present and zero"; producers omit
// empty optional fields rather than serializing empty strings.
type innerMessage struct {
	Version     *uint32 `json:"version,omitempty"`
	Source      *string `json:"source,omitempty"`
	Destination *string `json:"destination,omitempty"`
	User        *string `json:"user,omitempty"`
	Timestamp   *int64  `json:"timestamp,omitempty"`
	Topic       *string `json:"topic,omitempty"`
	Data        *string `json:"data,omitempty"`
}

// Envelope is a parsed wire object. The message token is kept exactly as
// it appeared inside the outer JSON: the signature covers that stored
// token, never a re-encoding, because re-encoding may reorder fields.
type Envelope struct {
	message   string
	signature string
	inner     innerMessage
}

// New builds, signs and encodes an envelope, returning the opaque token
// that crosses a queue. The inner message gets the current protocol
// version, the calling user and the current time; an empty topic is
// omitted entirely.
func New(s *signer.Signer, source, destination string, data []byte, topic string) (string, error) {
	version := ProtocolVersion
	user := util.CurrentUser()
	timestamp := time.Now().Unix()
	dataToken := codec.Encode(data)

	inner := innerMessage{
		Version:     &version,
		Source:      &source,
		Destination: &destination,
		User:        &user,
		Timestamp:   &timestamp,
		Data:        &dataToken,
	}
	if topic != "" {
		inner.Topic = &topic
	}

	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return "", oops.Wrapf(err, "marshal inner message")
	}
	messageToken := codec.Encode(innerJSON)

	sigToken, err := s.Sign([]byte(messageToken))
	if err != nil {
		return "", err
	}

	outerJSON, err := json.Marshal(outerMessage{
		Message:   messageToken,
		Signature: sigToken,
	})
	if err != nil {
		return "", oops.Wrapf(err, "marshal outer message")
	}

	token := codec.Encode(outerJSON)
	log.WithField("destination", destination).Debug("Built envelope")
	return token, nil
}

// Parse decodes both envelope layers without any signature checking.
// Callers that need authenticity must follow up with Validate.
func Parse(token string) (*Envelope, error) {
	outerJSON, err := codec.Decode(token)
	if err != nil {
		return nil, err
	}
	var outer outerMessage
	if err := json.Unmarshal(outerJSON, &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	innerJSON, err := codec.Decode(outer.Message)
	if err != nil {
		return nil, err
	}
	var inner innerMessage
	if err := json.Unmarshal(innerJSON, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	return &Envelope{
		message:   outer.Message,
		signature: outer.Signature,
		inner:     inner,
	}, nil
}

// Validate re-verifies the signature over the stored message token and
// gates on the protocol version. Signature failure wins over version
// drift: a broken signature reports as such even when the version field
// is also foreign.
func (e *Envelope) Validate(s *signer.Signer) error {
	info, err := s.Verify([]byte(e.message), e.signature)
	if err != nil {
		return err
	}
	if !info.Valid {
		return signer.ErrBadSignature
	}
	if e.inner.Version == nil {
		return fmt.Errorf("%w: version", ErrFieldMissing)
	}
	if *e.inner.Version != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, *e.inner.Version)
	}
	return nil
}

// Message returns the encoded inner message exactly as signed.
func (e *Envelope) Message() string { return e.message }

// Signature returns the encoded detached signature.
func (e *Envelope) Signature() string { return e.signature }

// Accessors return inner-message fields without re-verifying the
// signature and without logging; absent fields yield ErrFieldMissing.

func (e *Envelope) Version() (uint32, error) {
	if e.inner.Version == nil {
		return 0, fmt.Errorf("%w: version", ErrFieldMissing)
	}
	return *e.inner.Version, nil
}

func (e *Envelope) Source() (string, error) {
	if e.inner.Source == nil {
		return "", fmt.Errorf("%w: source", ErrFieldMissing)
	}
	return *e.inner.Source, nil
}

func (e *Envelope) Destination() (string, error) {
	if e.inner.Destination == nil {
		return "", fmt.Errorf("%w: destination", ErrFieldMissing)
	}
	return *e.inner.Destination, nil
}

func (e *Envelope) User() (string, error) {
	if e.inner.User == nil {
		return "", fmt.Errorf("%w: user", ErrFieldMissing)
	}
	return *e.inner.User, nil
}

func (e *Envelope) Timestamp() (int64, error) {
	if e.inner.Timestamp == nil {
		return 0, fmt.Errorf("%w: timestamp", ErrFieldMissing)
	}
	return *e.inner.Timestamp, nil
}

func (e *Envelope) Topic() (string, error) {
	if e.inner.Topic == nil {
		return "", fmt.Errorf("%w: topic", ErrFieldMissing)
	}
	return *e.inner.Topic, nil
}

func (e *Envelope) Data() ([]byte, error) {
	if e.inner.Data == nil {
		return nil, fmt.Errorf("%w: data", ErrFieldMissing)
	}
	return codec.Decode(*e.inner.Data)
}

// signerInfo runs verification purely to extract the reported identity.
func (e *Envelope) signerInfo(s *signer.Signer) (signer.Info, error) {
	return s.Verify([]byte(e.message), e.signature)
}

func (e *Envelope) SignerName(s *signer.Signer) (string, error) {
	info, err := e.signerInfo(s)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

func (e *Envelope) SignerEmail(s *signer.Signer) (string, error) {
	info, err := e.signerInfo(s)
	if err != nil {
		return "", err
	}
	return info.Email, nil
}

func (e *Envelope) SignerKey(s *signer.Signer) (string, error) {
	info, err := e.signerInfo(s)
	if err != nil {
		return "", err
	}
	return info.KeyFingerprint, nil
}
