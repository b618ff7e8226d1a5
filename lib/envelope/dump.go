package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-i2p/go-ipc/lib/signer"
)

const unknownField = "(unknown)"

// Dump renders a human-readable diagnostic block for an envelope token.
// It never fails: a token that does not parse renders as a single
// "unparseable" line, missing fields render as "(unknown)", and an absent
// topic renders as "(none)". Signature and version problems are additionally logged
// here, the one place diagnostics are allowed to.
func Dump(s *signer.Signer, token string) string {
	var sb strings.Builder

	e, err := Parse(token)
	if err != nil {
		log.WithError(err).Warn("Dumping unparseable envelope")
		fmt.Fprintf(&sb, "envelope:     unparseable (%v)\n", err)
		return sb.String()
	}

	writeVersionLine(&sb, e)
	writeSignatureLines(&sb, s, e)
	writeFieldLines(&sb, e)
	writePayload(&sb, e)
	return sb.String()
}

func writeVersionLine(sb *strings.Builder, e *Envelope) {
	version, err := e.Version()
	switch {
	case err != nil:
		fmt.Fprintf(sb, "version:      %s\n", unknownField)
	case version == ProtocolVersion:
		fmt.Fprintf(sb, "version:      %d (supported)\n", version)
	default:
		log.WithField("version", version).Warn("Dumping envelope with unsupported version")
		fmt.Fprintf(sb, "version:      %d (UNSUPPORTED)\n", version)
	}
}

func writeSignatureLines(sb *strings.Builder, s *signer.Signer, e *Envelope) {
	info, err := e.signerInfo(s)
	if err != nil {
		log.WithError(err).Warn("Dumping envelope with unparseable signature")
		fmt.Fprintf(sb, "signature:    unparseable\n")
		return
	}
	if info.Valid {
		fmt.Fprintf(sb, "signature:    valid\n")
	} else {
		log.Warn("Dumping envelope with invalid signature")
		fmt.Fprintf(sb, "signature:    INVALID\n")
	}
	fmt.Fprintf(sb, "signed by:    %s <%s>\n", orUnknown(info.Name), orUnknown(info.Email))
	fmt.Fprintf(sb, "fingerprint:  %s\n", orUnknown(info.KeyFingerprint))
}

func writeFieldLines(sb *strings.Builder, e *Envelope) {
	source, err := e.Source()
	fmt.Fprintf(sb, "source:       %s\n", stringOrUnknown(source, err))
	destination, err := e.Destination()
	fmt.Fprintf(sb, "destination:  %s\n", stringOrUnknown(destination, err))
	user, err := e.User()
	fmt.Fprintf(sb, "user:         %s\n", stringOrUnknown(user, err))

	if ts, err := e.Timestamp(); err != nil {
		fmt.Fprintf(sb, "timestamp:    %s\n", unknownField)
	} else {
		fmt.Fprintf(sb, "timestamp:    %d (%s)\n", ts, time.Unix(ts, 0).UTC().Format(time.RFC3339))
	}

	if topic, err := e.Topic(); err != nil {
		fmt.Fprintf(sb, "topic:        (none)\n")
	} else {
		fmt.Fprintf(sb, "topic:        %s\n", topic)
	}
}

func writePayload(sb *strings.Builder, e *Envelope) {
	data, err := e.Data()
	if err != nil {
		fmt.Fprintf(sb, "payload:      %s\n", unknownField)
		return
	}
	fmt.Fprintf(sb, "payload:      %d bytes\n", len(data))

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "  ", "  ") == nil {
		fmt.Fprintf(sb, "  %s\n", pretty.String())
		return
	}
	fmt.Fprintf(sb, "  %q\n", data)
}

func orUnknown(v string) string {
	if v == "" || v == signer.Unknown {
		return unknownField
	}
	return v
}

func stringOrUnknown(v string, err error) string {
	if err != nil {
		return unknownField
	}
	return v
}
