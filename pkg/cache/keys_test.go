package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pizza", "pizza"},
		{"  Pizza  Place ", "pizza place"},
		{"PIZZA\tplace\n", "pizza place"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.in))
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "search:joe's pizza", SearchKey("  Joe's   PIZZA"))
	assert.Equal(t, SearchKey("pizza"), SearchKey("PIZZA "))
	assert.Equal(t, "api:/api/venues", APIKey("/api/venues"))
	assert.Equal(t, "ratelimit:10.0.0.1", RateLimitKey("10.0.0.1"))
}
