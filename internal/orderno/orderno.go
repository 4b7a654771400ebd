// Package orderno generates merchant order numbers.
//
// The gateway accepts a numeric orderNo of at most 10 digits.
package orderno

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// MaxLen is the longest order number the gateway accepts.
const MaxLen = 10

// Generate returns a random numeric order number of the given length
// (1..MaxLen) without a leading zero.
func Generate(length int) (string, error) {
	if length < 1 || length > MaxLen {
		return "", fmt.Errorf("order number length must be 1..%d", MaxLen)
	}
	for {
		digits, err := randomDigits(length)
		if err != nil {
			return "", fmt.Errorf("rand: %w", err)
		}
		if length == 1 || digits[0] != '0' {
			return digits, nil
		}
	}
}

// randomDigits uses rejection sampling: only bytes < 250 are kept, so
// every digit is equally likely.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 32)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			b := buf[i]
			if b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

// Validate checks an order number supplied by a caller.
func Validate(orderNo string) error {
	if orderNo == "" {
		return fmt.Errorf("order number is required")
	}
	if !IsDigits(orderNo) {
		return fmt.Errorf("order number must contain digits only")
	}
	if len(orderNo) > MaxLen {
		return fmt.Errorf("order number must be at most %d digits (got %d)", MaxLen, len(orderNo))
	}
	return nil
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// GenerateUnique retries Generate until exists reports the number unused.
// exists is typically backed by the payment journal.
func GenerateUnique(length, maxRetries int, exists func(string) (bool, error)) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for i := 0; i <= maxRetries; i++ {
		n, err := Generate(length)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return n, nil
		}
		used, err := exists(n)
		if err != nil {
			return "", fmt.Errorf("exists callback: %w", err)
		}
		if !used {
			return n, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique order number after %d retries", maxRetries)
}
