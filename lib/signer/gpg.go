package signer

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/samber/oops"
)

// GPGBackend shells out to an external gpg binary. Useful when the signing
// key lives in an agent or on a smartcard that in-process OpenPGP cannot
// reach. The verify report is gpg's own output (status lines plus the
// human-readable stderr), which the Signer parses the same way as the
// in-process backend's synthesized report.
type GPGBackend struct {
	binary string
}

// NewGPGBackend wraps the given gpg binary; an empty string means
// whatever "gpg" resolves to on PATH.
func NewGPGBackend(binary string) *GPGBackend {
	if binary == "" {
		binary = "gpg"
	}
	return &GPGBackend{binary: binary}
}

func (b *GPGBackend) Sign(data []byte) ([]byte, error) {
	cmd := exec.Command(b.binary, "--batch", "--yes", "--detach-sign", "--output", "-")
	cmd.Stdin = bytes.NewReader(data)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, oops.Wrapf(err, "gpg --detach-sign: %s", stderr.String())
	}
	return out.Bytes(), nil
}

func (b *GPGBackend) Verify(data, sig []byte) (bool, string, error) {
	dir, err := os.MkdirTemp("", "go-ipc-gpg-")
	if err != nil {
		return false, "", oops.Wrapf(err, "verify scratch dir")
	}
	defer os.RemoveAll(dir)

	sigFile := filepath.Join(dir, "msg.sig")
	dataFile := filepath.Join(dir, "msg")
	if err := os.WriteFile(sigFile, sig, 0o600); err != nil {
		return false, "", oops.Wrapf(err, "write signature file")
	}
	if err := os.WriteFile(dataFile, data, 0o600); err != nil {
		return false, "", oops.Wrapf(err, "write data file")
	}

	// --status-fd 1 adds machine lines (VALIDSIG carries the fingerprint
	// unspaced); stderr carries the `Good signature from "..."` identity.
	cmd := exec.Command(b.binary, "--batch", "--status-fd", "1", "--verify", sigFile, dataFile)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	report := out.String() + stderr.String()

	if runErr == nil {
		return true, report, nil
	}
	if _, isExit := runErr.(*exec.ExitError); isExit && report != "" {
		// gpg parsed the signature and rejected it.
		return false, report, nil
	}
	return false, report, oops.Wrapf(runErr, "gpg --verify")
}
