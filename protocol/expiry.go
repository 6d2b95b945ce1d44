package protocol

import "time"

// FallbackTTL applies to message types without an entry in defaultTTLs.
const FallbackTTL = 10 * time.Minute

// Vehicle reports go stale fast. Client requests may wait in a backlog and
// kernel replies are kept long enough for slow consumers.
var defaultTTLs = map[string]time.Duration{
	TypeVehicleStatus:    30 * time.Second,
	TypeVehicleCommand:   2 * time.Minute,
	TypeVehicleProgress:  5 * time.Minute,
	TypeVehicleRejection: 10 * time.Minute,
	TypeVehicleWithdrawn: 10 * time.Minute,

	TypeOrderAccepted:    30 * time.Minute,
	TypeSequenceAccepted: 30 * time.Minute,
	TypeOrderUpdate:      30 * time.Minute,
	TypeOrderError:       30 * time.Minute,
}

func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// expired reports whether exp lies in the past. A zero expiry never expires.
func expired(exp time.Time) bool {
	return !exp.IsZero() && time.Now().UTC().After(exp)
}

func IsExpired(env *Envelope) bool { return expired(env.ExpiresAt) }

func IsExpiredHeader(hdr *RawHeader) bool { return expired(hdr.ExpiresAt) }
