package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	tokenKeySalt = []byte("admitdesk/password-reset")

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes and verifies password reset tokens of the form "<issued>-<signature>",
// issued being the base36 number of minutes since the Unix epoch.
// The signature covers the password hash and the last login, so a token dies once either changes.
type tokenGenerator struct {
	secretKey []byte
	timeout   time.Duration
	nowFunc   func() time.Time // mockable
}

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

func unixMinutes(t time.Time) int64 {
	return t.Unix() / 60
}

func (gen tokenGenerator) makeToken(usr User) (string, error) {
	issued := strconv.FormatInt(unixMinutes(gen.nowFunc()), 36)
	return issued + "-" + gen.signature(usr, issued), nil
}

func (gen tokenGenerator) verifyToken(usr User, token string) error {
	issued, sig, ok := strings.Cut(token, "-")
	if !ok || issued == "" {
		return errInvalidToken
	}
	minutes, err := strconv.ParseInt(issued, 36, 64)
	if err != nil {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(gen.signature(usr, issued))) {
		return errInvalidToken
	}
	if age := time.Duration(unixMinutes(gen.nowFunc())-minutes) * time.Minute; age > gen.timeout {
		return errTokenExpired
	}
	return nil
}

func (gen tokenGenerator) signature(usr User, issued string) string {
	key := sha256.Sum256(append(append([]byte{}, tokenKeySalt...), gen.secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write([]byte(usr.ID))
	h.Write(usr.PasswordHash)
	if usr.LastLogin != nil {
		h.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339Nano)))
	}
	h.Write([]byte(issued))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
