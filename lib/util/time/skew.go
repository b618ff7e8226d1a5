package time

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	// DefaultNTPServer is queried when the caller does not name one.
	DefaultNTPServer = "pool.ntp.org"
	// DefaultQueryTimeout bounds the probe so a firewalled host does not
	// stall startup.
	DefaultQueryTimeout = 5 * time.Second
)

// NTPClient lets tests substitute the network query.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

type DefaultNTPClient struct{}

func (c *DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

var client NTPClient = &DefaultNTPClient{}

// CheckSkew performs a one-shot NTP probe and returns the local clock's
// offset from network time. Envelope timestamps come straight from the
// wall clock, so receivers that deduplicate on timestamps care about the
// offset being small. Empty server and zero timeout select the defaults.
func CheckSkew(server string, timeout time.Duration) (time.Duration, error) {
	if server == "" {
		server = DefaultNTPServer
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	response, err := client.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, oops.Wrapf(err, "ntp query %s", server)
	}
	if err := response.Validate(); err != nil {
		return 0, oops.Wrapf(err, "ntp response from %s", server)
	}

	log.WithField("offset", response.ClockOffset).Debug("NTP clock skew probe")
	return response.ClockOffset, nil
}
