package seller

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrNotFound    = errors.New("seller not found")
	ErrInvalidCode = errors.New("invalid seller code")
)

// Seller is a verified party from the claimant identity table.
type Seller struct {
	RecordID       string    `json:"recordId"`
	Code           string    `json:"code"`
	DisplayName    string    `json:"displayName"`
	PlatformUserID string    `json:"platformUserId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

var digits = regexp.MustCompile(`\d+`)

// NormalizeCode turns "1", "se 1" or "SE-00001" into "SE-00001".
func NormalizeCode(raw string) (string, error) {
	m := digits.FindString(raw)
	if m == "" {
		return "", ErrInvalidCode
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return "", ErrInvalidCode
	}
	return fmt.Sprintf("SE-%05d", n), nil
}
