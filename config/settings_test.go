package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsEnvOverride(t *testing.T) {
	s := NewSettings(nil)

	t.Setenv("NOTIFY_MAX_CONTENT_LENGTH", "240")
	t.Setenv("NOTIFY_DISABLE", "true")
	t.Setenv("OAUTH_STATE_MAX_AGE_MINUTES", "15")

	v, err := s.GetInt(context.Background(), KeyMaxContentLength, 500)
	require.NoError(t, err)
	assert.Equal(t, 240, v)

	b, err := s.GetBool(context.Background(), KeyNotifyDisabled, false)
	require.NoError(t, err)
	assert.True(t, b)

	age, err := s.GetInt(context.Background(), KeyStateMaxAgeMin, 30)
	require.NoError(t, err)
	assert.Equal(t, 15, age)
}

func TestSettingsBoolParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"false", false},
		{"0", false},
		{"yes", false},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			s := NewSettings(nil)
			t.Setenv("NOTIFY_DISABLE", tc.raw)

			got, err := s.GetBool(context.Background(), KeyNotifyDisabled, false)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSettingsIntFallsBackOnGarbage(t *testing.T) {
	s := NewSettings(nil)

	t.Setenv("NOTIFY_MAX_CONTENT_LENGTH", "not-a-number")

	v, err := s.GetInt(context.Background(), KeyMaxContentLength, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, v)
}

func TestSettingsCache(t *testing.T) {
	s := NewSettings(nil)

	s.putInCache(KeyMaxContentLength, "320")

	v, err := s.GetString(context.Background(), KeyMaxContentLength, "500")
	require.NoError(t, err)
	assert.Equal(t, "320", v)

	cached, ok := s.getFromCache(KeyMaxContentLength)
	assert.True(t, ok)
	assert.Equal(t, "320", cached)
}
