package redis

import (
	"strconv"
	"time"
)

const (
	sessionPrefix         = "session:"
	adminSessionPrefix    = "admin_session:"
	adminTokenPrefix      = "admin_token:"
	adminUserTokensPrefix = "admin_user_tokens:"
	rateLimitPrefix       = "rate_limit:"

	opTimeout = 5 * time.Second

	// retentionGrace keeps records around slightly past their logical expiry
	// so expiry is always decided by the stored timestamp, not the key TTL.
	retentionGrace = time.Minute
)

func msString(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMS(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func retention(until, now time.Time) time.Duration {
	d := until.Sub(now)
	if d < 0 {
		d = 0
	}
	return d + retentionGrace
}
