package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		max  time.Duration
		want time.Duration
	}{
		{name: "zero falls back to default", ttl: 0, max: MaxTTL, want: DefaultTTL},
		{name: "negative falls back to default", ttl: -time.Minute, max: MaxTTL, want: DefaultTTL},
		{name: "below floor clamps to 1s", ttl: 10 * time.Millisecond, max: MaxTTL, want: time.Second},
		{name: "above max clamps to max", ttl: 48 * time.Hour, max: MaxTTL, want: MaxTTL},
		{name: "in range passes through", ttl: 10 * time.Minute, max: MaxTTL, want: 10 * time.Minute},
		{name: "zero max uses MaxTTL", ttl: 48 * time.Hour, max: 0, want: MaxTTL},
		{name: "custom max", ttl: time.Hour, max: 30 * time.Minute, want: 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampTTL(tt.ttl, tt.max))
		})
	}
}

func TestComposeKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "abc", want: "abc"},
		{name: "prefix joined with colon", prefix: "chat", key: "abc", want: "chat:abc"},
		{name: "allowed characters preserved", prefix: "a.b", key: "k_1:x-2", want: "a.b:k_1:x-2"},
		{name: "disallowed characters replaced", prefix: "p", key: "a b/c*d", want: "p:a_b_c_d"},
		{name: "unicode replaced", prefix: "", key: "naïve", want: "na_ve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeKey(tt.prefix, tt.key))
		})
	}
}

func TestEnvelopeExpired(t *testing.T) {
	stored := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := envelope{StoredAt: stored, TTLSeconds: 60}

	assert.False(t, e.expired(stored.Add(30*time.Second)))
	assert.False(t, e.expired(stored.Add(60*time.Second)))
	assert.True(t, e.expired(stored.Add(61*time.Second)))
}
