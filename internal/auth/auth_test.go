package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantID(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   int64
		ok     bool
	}{
		{"float", map[string]interface{}{ParticipantClaim: float64(42)}, 42, true},
		{"int64", map[string]interface{}{ParticipantClaim: int64(7)}, 7, true},
		{"number", map[string]interface{}{ParticipantClaim: json.Number("9000000001")}, 9000000001, true},
		{"string", map[string]interface{}{ParticipantClaim: "15"}, 15, true},
		{"missing", map[string]interface{}{"service_id": 1}, 0, false},
		{"zero", map[string]interface{}{ParticipantClaim: float64(0)}, 0, false},
		{"garbage", map[string]interface{}{ParticipantClaim: "abc"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParticipantID(tt.claims)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrNoParticipant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssueTokenRoundTrip(t *testing.T) {
	ta := New("secret")
	token, err := IssueToken(ta, 31, time.Hour)
	require.NoError(t, err)

	parsed, err := jwtauth.VerifyToken(ta, token)
	require.NoError(t, err)

	claims, err := parsed.AsMap(context.Background())
	require.NoError(t, err)

	id, err := ParticipantID(claims)
	require.NoError(t, err)
	assert.Equal(t, int64(31), id)
}
