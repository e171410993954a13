// Package access implements the optional per-gallery PIN: hashing, checking
// and rate limiting unlock attempts.
package access

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidPIN is returned when a PIN does not match.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrMalformedPIN is returned for PINs outside the allowed alphabet or length.
	ErrMalformedPIN = errors.New("pin must be 4-32 letters or digits")
	// ErrRateLimited is returned when a gallery has too many recent attempts.
	ErrRateLimited = errors.New("too many pin attempts")
)

var pinPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)

// ValidatePIN checks a PIN's format.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrMalformedPIN
	}
	return nil
}

// HashPIN returns the bcrypt hash stored on the catalog.
func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// isHash reports whether stored looks like a bcrypt hash.
func isHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// VerifyPIN compares pin with the stored value. Catalogs written by older
// versions hold the PIN in plain text; those are compared in constant time.
// An empty stored value means the gallery is not locked.
func VerifyPIN(stored, pin string) error {
	if stored == "" {
		return nil
	}
	if isHash(stored) {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(pin)); err != nil {
			return ErrInvalidPIN
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) != 1 {
		return ErrInvalidPIN
	}
	return nil
}

// Limiter throttles unlock attempts per gallery.
type Limiter struct {
	perMinute int

	mu       sync.Mutex
	limiters map[string]*entry
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perMinute attempts per gallery, with bursts up to the
// same number. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		limiters:  make(map[string]*entry),
		now:       time.Now,
	}
}

// Allow reports whether another attempt on galleryID may proceed.
func (l *Limiter) Allow(galleryID string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[galleryID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.limiters[galleryID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune drops limiters idle for longer than idle.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for id, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}
