package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"
)

// NewSecret returns 32 random bytes hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hash of an API key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// SameKey compares two API keys through their hashes in constant time.
func SameKey(a, b string) bool {
	ha, hb := HashAPIKey(a), HashAPIKey(b)
	return subtle.ConstantTimeCompare([]byte(ha), []byte(hb)) == 1
}

func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	if len(pw) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
