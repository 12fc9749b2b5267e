// Package config holds the typed repository settings and the helpers that
// turn user-supplied text into them.
//
// Settings are a closed set of fields. Text is parsed into typed values only
// at the boundary (ParseKey, ParseSize, Settings.Set); everything past that
// point works with Settings directly.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key names a recognized repository setting.
type Key string

const (
	// KeySize is the byte budget for the total size of archived blobs.
	KeySize Key = "size"
)

// Keys lists every recognized key in display order.
var Keys = []Key{KeySize}

// DefaultSize is the byte budget of a freshly initialized repository (10 GiB).
const DefaultSize int64 = 10 << 30

var (
	// ErrUnknownKey indicates a key outside the recognized set.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrInvalidSize indicates a size that does not parse or is not positive.
	ErrInvalidSize = errors.New("invalid size")
)

// Settings is the typed view of the config table.
type Settings struct {
	Size int64
}

// Defaults returns the settings of a new repository.
func Defaults() Settings {
	return Settings{Size: DefaultSize}
}

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	for _, k := range Keys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKey, s)
}

// Value renders the stored text form of key.
func (s Settings) Value(key Key) (string, error) {
	switch key {
	case KeySize:
		return strconv.FormatInt(s.Size, 10), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKey, string(key))
	}
}

// Set parses raw user input for key and stores the typed result.
func (s *Settings) Set(key Key, raw string) error {
	switch key {
	case KeySize:
		size, err := ParseSize(raw)
		if err != nil {
			return err
		}
		s.Size = size
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, string(key))
	}
}

// Load fills key from its stored text form. Stored values are plain
// integers; suffixes are only accepted from users.
func (s *Settings) Load(key Key, stored string) error {
	switch key {
	case KeySize:
		size, err := strconv.ParseInt(stored, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: stored value %q: %v", ErrInvalidSize, stored, err)
		}
		if size <= 0 {
			return fmt.Errorf("%w: stored value %d should be positive", ErrInvalidSize, size)
		}
		s.Size = size
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, string(key))
	}
}

// Lowercase suffixes are binary multiples, uppercase are decimal.
var sizeMultipliers = map[byte]float64{
	'k': 1 << 10,
	'm': 1 << 20,
	'g': 1 << 30,
	't': 1 << 40,
	'K': 1e3,
	'M': 1e6,
	'G': 1e9,
	'T': 1e12,
}

// ParseSize converts a size string such as "512", "1.5g" or "10M" to bytes.
// The result must be positive.
func ParseSize(s string) (int64, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidSize)
	}

	multiplier := 1.0
	if m, ok := sizeMultipliers[s[len(s)-1]]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}

	mantissa, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(mantissa) || math.IsInf(mantissa, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidSize, raw)
	}

	bytes := mantissa * multiplier
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidSize, raw)
	}
	size := int64(bytes)
	if size <= 0 {
		return 0, fmt.Errorf("%w: %q should be positive", ErrInvalidSize, raw)
	}
	return size, nil
}
