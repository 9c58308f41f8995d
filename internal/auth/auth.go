// Package auth holds the JWT setup shared by the game and socket services.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
)

const ParticipantClaim = "participant_id"

var ErrNoParticipant = errors.New("token carries no participant")

func New(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs a participant token valid for ttl.
func IssueToken(ta *jwtauth.JWTAuth, participantID int64, ttl time.Duration) (string, error) {
	_, tokenString, err := ta.Encode(map[string]interface{}{
		ParticipantClaim: participantID,
		"exp":            time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ParticipantID extracts the participant from verified token claims.
func ParticipantID(claims map[string]interface{}) (int64, error) {
	raw, ok := claims[ParticipantClaim]
	if !ok {
		return 0, ErrNoParticipant
	}

	var id int64
	switch v := raw.(type) {
	case float64:
		id = int64(v)
	case int64:
		id = v
	case int:
		id = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, ErrNoParticipant
		}
		id = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, ErrNoParticipant
		}
		id = n
	default:
		return 0, ErrNoParticipant
	}

	if id <= 0 {
		return 0, ErrNoParticipant
	}
	return id, nil
}
