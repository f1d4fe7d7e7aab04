package decryptor

import (
	"errors"
	"log/slog"
	"strings"
)

// ErrMissingSecrets means the client ID or client secret is not configured.
var ErrMissingSecrets = errors.New("client id and client secret must be set")

// Secrets is the process-wide client credential pair issued by the upstream
// translation provider. It is loaded once at startup and never changes.
type Secrets struct {
	ClientID     string
	ClientSecret string
}

// Empty reports whether either half of the pair is missing.
func (s Secrets) Empty() bool {
	return strings.TrimSpace(s.ClientID) == "" || strings.TrimSpace(s.ClientSecret) == ""
}

// Validate checks that both values are present and that the secret is a
// valid AES key.
func (s Secrets) Validate() error {
	if s.Empty() {
		return ErrMissingSecrets
	}
	return ValidateKey(s.ClientSecret)
}

// Decrypt decrypts encryptedB64 with this secret pair.
func (s Secrets) Decrypt(encryptedB64 string) (string, error) {
	return Decrypt(encryptedB64, s.ClientID, s.ClientSecret)
}

// Encrypt encrypts plaintext with this secret pair.
func (s Secrets) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, s.ClientID, s.ClientSecret)
}

// String masks both values so the pair can be printed safely.
func (s Secrets) String() string {
	return "client_id=" + Mask(s.ClientID) + " client_secret=" + Mask(s.ClientSecret)
}

// LogValue keeps slog from ever emitting the raw secrets.
func (s Secrets) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", Mask(s.ClientID)),
		slog.String("client_secret", Mask(s.ClientSecret)),
	)
}

// Mask shows at most the first two characters of v.
func Mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 4:
		return "****"
	default:
		return v[:2] + strings.Repeat("*", 6)
	}
}
