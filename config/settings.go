package config

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Settings keys consumed by the dispatcher and flow orchestrator.
const (
	KeyMaxContentLength = "notify.max_content_length"
	KeyNotifyDisabled   = "notify.disable"
	KeyStateMaxAgeMin   = "oauth.state_max_age_minutes"
)

const settingsCacheTTL = time.Minute

// Settings provides access to dynamic configuration values stored in
// the system_config table. Environment variables override DB values;
// the env var name is the key uppercased with dots replaced by
// underscores.
type Settings struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     string
	expiresAt time.Time
}

func NewSettings(db *sql.DB) *Settings {
	return &Settings{db: db, cache: make(map[string]cachedEntry)}
}

// GetString returns a string setting.
func (s *Settings) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	if v, ok := s.envOverride(key); ok {
		return v, nil
	}

	if v, ok := s.getFromCache(key); ok {
		return v, nil
	}

	// Without a backing table only env overrides and defaults apply.
	if s.db == nil {
		return defaultValue, nil
	}

	const q = `SELECT value FROM system_config WHERE key = $1 LIMIT 1`

	var v string
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return defaultValue, nil
		}

		return "", err
	}

	s.putInCache(key, v)

	return v, nil
}

// GetBool returns a boolean setting.
func (s *Settings) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return false, err
	}

	if v == "" {
		return defaultValue, nil
	}

	return strings.EqualFold(v, "true") || v == "1", nil
}

// GetInt returns an integer setting. Unparseable values fall back to
// the default.
func (s *Settings) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}

	parsed, perr := strconv.Atoi(strings.TrimSpace(v))
	if v == "" || perr != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

// Upsert writes a setting and drops it from the cache.
func (s *Settings) Upsert(ctx context.Context, key, value string) error {
	const q = `INSERT INTO system_config (key, value, updated_at)
	           VALUES ($1, $2, NOW())
	           ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, q, key, value)
	if err == nil {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()
	}

	return err
}

func (s *Settings) envOverride(key string) (string, bool) {
	envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if v := os.Getenv(envKey); v != "" {
		return v, true
	}

	return "", false
}

func (s *Settings) getFromCache(key string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()

		return "", false
	}

	return entry.value, true
}

func (s *Settings) putInCache(key, value string) {
	s.mu.Lock()
	s.cache[key] = cachedEntry{value: value, expiresAt: time.Now().Add(settingsCacheTTL)}
	s.mu.Unlock()
}
