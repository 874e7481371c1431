package api

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
)

// randomSource feeds token IDs.
var randomSource io.Reader = rand.Reader

func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(randomSource, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(b)
	if len(encoded) > length {
		return encoded[:length], nil
	}
	return encoded, nil
}

// parseLimit reads a positive page size, capped at ceiling.
func parseLimit(raw string, def, ceiling int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, ceiling), nil
}
