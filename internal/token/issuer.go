// Package token issues opaque callback identifiers for answer buttons.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	"sync"
	"time"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Issuer derives tokens from a strictly increasing nanosecond stamp keyed
// with a secret that lives as long as the process.
type Issuer struct {
	mu     sync.Mutex
	secret []byte
	enc    *base64.Encoding
	last   int64
	now    func() time.Time
}

func NewIssuer() *Issuer {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("token: no entropy: " + err.Error())
	}
	return &Issuer{
		secret: secret,
		enc:    base64.NewEncoding(shuffled(alphabet)).WithPadding(base64.NoPadding),
		now:    time.Now,
	}
}

// Issue returns a new token. Two calls never share a stamp, so tokens never
// repeat within the life of the issuer.
func (i *Issuer) Issue() string {
	i.mu.Lock()
	stamp := i.now().UnixNano()
	if stamp <= i.last {
		stamp = i.last + 1
	}
	i.last = stamp
	i.mu.Unlock()

	var msg [9]byte
	binary.BigEndian.PutUint64(msg[1:], uint64(stamp))
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(msg[:])
	return i.enc.EncodeToString(mac.Sum(nil))
}

// IsCorrect compares in constant time with respect to the contents.
func IsCorrect(candidate, reference string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(reference)) == 1
}

// shuffled returns a random permutation of s (Fisher-Yates, crypto source).
func shuffled(s string) string {
	b := []byte(s)
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			panic("token: no entropy: " + err.Error())
		}
		j := int(n.Int64())
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
