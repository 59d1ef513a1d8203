package apiclient

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"bankid-auth/internal/apperr"
	"bankid-auth/internal/logger"
)

const DefaultThreshold = 5 * time.Minute

// ErrAuthenticationFailed is returned for every rejected caller, whatever
// the reason, so responses do not reveal which check failed.
var ErrAuthenticationFailed = apperr.New(apperr.KindAuthenticationFailed, "api client authentication failed")

// SecretHash returns hex(SHA-256(secret + timestamp)).
func SecretHash(secret, timestamp string) string {
	sum := sha256.Sum256([]byte(secret + timestamp))
	return hex.EncodeToString(sum[:])
}

type Verifier struct {
	Store     Store
	Threshold time.Duration
	Now       func() time.Time

	// Guard is optional. When set, every accepted hash can be used once.
	Guard NonceGuard
}

func NewVerifier(store Store, threshold time.Duration) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{
		Store:     store,
		Threshold: threshold,
		Now:       time.Now,
	}
}

// Verify checks that claimedHash was produced from the client's secret and
// timestamp, and that timestamp lies within the drift threshold.
func (v *Verifier) Verify(ctx context.Context, clientID, claimedHash, timestamp string) (*APIClient, error) {
	if clientID == "" || claimedHash == "" || timestamp == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "client_id, client_secret and timestamp are required")
	}

	ts, ok := parseTimestamp(timestamp)
	if !ok {
		return nil, ErrAuthenticationFailed
	}

	// Compared in whole seconds: now is a realistic unix time, so now±thr
	// cannot overflow whatever ts the caller sent.
	now := v.Now().Unix()
	thr := int64(v.Threshold / time.Second)
	if ts < now-thr || ts > now+thr {
		logger.Debug("api client timestamp out of range", map[string]any{
			"client_id": clientID,
			"timestamp": timestamp,
		})
		return nil, ErrAuthenticationFailed
	}

	client, err := v.Store.Get(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAuthenticationFailed
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load api client", err)
	}
	if !client.IsActive {
		return nil, ErrAuthenticationFailed
	}

	expected := SecretHash(client.Secret, timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claimedHash)) != 1 {
		return nil, ErrAuthenticationFailed
	}

	if v.Guard != nil {
		fresh, err := v.Guard.Claim(ctx, clientID, timestamp, claimedHash, 2*v.Threshold)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "replay guard", err)
		}
		if !fresh {
			logger.Warn("api client secret hash replayed", map[string]any{
				"client_id": clientID,
			})
			return nil, ErrAuthenticationFailed
		}
	}

	return client, nil
}

// parseTimestamp accepts plain base-10 unix seconds only. Signs, spaces and
// exponents are rejected.
func parseTimestamp(s string) (int64, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	return ts, err == nil
}
