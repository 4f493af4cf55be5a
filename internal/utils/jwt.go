package utils // package utils provides helpers for service tokens and hold tokens

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Service roles carried in the "role" claim.
const (
	RolePayments = "PAYMENTS" // payment callback service; may confirm holds
	RoleOps      = "OPS"      // operators; may list reservations and purge
)

// ServiceToken is a signed HS256 JWT together with its expiry.
type ServiceToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// NewServiceToken signs a token for a collaborating service.  subject names
// the caller (e.g. "payments-webhook"), role must be one of the Role
// constants.  The claims are sub, role, exp and iat.
func NewServiceToken(secret, subject, role string, ttl time.Duration) (ServiceToken, error) {
	if secret == "" {
		return ServiceToken{}, errors.New("empty signing secret")
	}
	if ttl <= 0 {
		return ServiceToken{}, errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": strings.ToUpper(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return ServiceToken{}, err
	}
	return ServiceToken{Token: signed, Exp: exp}, nil
}

// NewHoldToken returns a fresh opaque hold token: 32 lowercase hex
// characters from a random UUID.
func NewHoldToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
