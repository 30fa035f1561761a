package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_AccountID(t *testing.T) {
	tests := []struct {
		subject string
		want    int64
		wantErr bool
	}{
		{subject: "42", want: 42},
		{subject: "", wantErr: true},
		{subject: "abc", wantErr: true},
		{subject: "0", wantErr: true},
		{subject: "-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			c := &Claims{}
			c.Subject = tt.subject
			got, err := c.AccountID()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaims_IsAdmin(t *testing.T) {
	assert.True(t, (&Claims{Role: "admin"}).IsAdmin())
	assert.False(t, (&Claims{Role: "user"}).IsAdmin())
	assert.False(t, (&Claims{}).IsAdmin())
}

func TestWithClaims_RoundTrip(t *testing.T) {
	claims := &Claims{Email: "a@b.co"}
	ctx := WithClaims(context.Background(), claims, "raw-token")

	got, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	tok, ok := GetToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "raw-token", tok)

	_, ok = GetClaims(context.Background())
	assert.False(t, ok)
}
