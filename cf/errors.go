package cf

import (
	"errors"
	"fmt"
)

// ChallengeError is returned when a page turned out to be an anti-bot challenge
// instead of the requested content.
type ChallengeError struct {
	URL        string
	StatusCode int
	Indicators []string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("cf_challenge: status=%d url=%s indicators=%v", e.StatusCode, e.URL, e.Indicators)
}

// IsChallenge checks if err is (or wraps) a ChallengeError
func IsChallenge(err error) (*ChallengeError, bool) {
	var cfErr *ChallengeError
	if errors.As(err, &cfErr) {
		return cfErr, true
	}
	return nil, false
}
