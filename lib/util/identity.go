package util

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// CurrentUser returns the OS username of the calling process. Falls back
// to $USER when the user database is unavailable (static binaries,
// minimal containers), and to "nobody" as a last resort so callers always
// get a usable name.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		log.Warn("user.Current failed, falling back to $USER")
		return name
	}
	log.Warn("Cannot determine current user, using \"nobody\"")
	return "nobody"
}

// ProgramName returns the basename of the running executable with path
// separators stripped, suitable as a component of a synthesized endpoint
// name.
func ProgramName() string {
	name := filepath.Base(os.Args[0])
	if name == "" || name == "." || name == string(os.PathSeparator) {
		return "unknown"
	}
	return name
}
