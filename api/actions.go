package api

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Actions a signed link may authorize.
const (
	ActionComplete   = "complete"
	ActionReschedule = "reschedule"
)

// ErrInvalidActionToken covers expired, tampered and misdirected tokens alike;
// callers get no more detail than the sender of a forged link would.
var ErrInvalidActionToken = errors.New("invalid action token")

type actionClaims struct {
	jwt.RegisteredClaims
	Action string `json:"act"`
}

// ActionLinks mints and verifies the signed one-click links embedded in
// follow-up emails. Each token is HMAC-signed and carries the reminder id and
// the single action it authorizes.
type ActionLinks struct {
	baseURL    string
	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewActionLinks returns nil when no base URL or signing key is configured;
// follow-up emails then go out without action links.
func NewActionLinks(baseURL, signingKey string, tokenTTL time.Duration) *ActionLinks {
	if baseURL == "" || signingKey == "" {
		return nil
	}
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &ActionLinks{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

func (l *ActionLinks) CompleteURL(id string) (string, error) {
	return l.actionURL(ActionComplete, id)
}

func (l *ActionLinks) RescheduleURL(id string) (string, error) {
	return l.actionURL(ActionReschedule, id)
}

func (l *ActionLinks) actionURL(action, id string) (string, error) {
	now := l.now()
	claims := actionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.tokenTTL)),
		},
		Action: action,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", action, err)
	}
	return l.baseURL + "/api/actions/" + action + "?token=" + url.QueryEscape(token), nil
}

// Verify checks signature, expiry and the authorized action, and returns the
// reminder id the token was minted for.
func (l *ActionLinks) Verify(token, action string) (string, error) {
	var claims actionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidActionToken
	}
	if claims.Action != action || claims.Subject == "" {
		return "", ErrInvalidActionToken
	}
	return claims.Subject, nil
}
