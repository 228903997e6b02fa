package timesync

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultNTPTimeout bounds a single NTP query.
const DefaultNTPTimeout = 5 * time.Second

// NTPSource queries a single NTP server.
type NTPSource struct {
	Server  string
	Timeout time.Duration
}

// Now returns the host clock corrected by the server's measured offset. The
// query timeout is shortened to the context deadline when that is sooner.
func (s NTPSource) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultNTPTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := ntp.QueryWithOptions(s.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp query %s: %w", s.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("ntp response from %s: %w", s.Server, err)
	}
	return time.Now().Add(resp.ClockOffset), nil
}
