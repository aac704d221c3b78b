package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of every environment variable read by the service.
const EnvPrefix = "COLLECTION_SERVICE_"

// ApplyEnv reads environment variables that are not represented by dedicated
// CLI flags in the serve command.
func (c *Config) ApplyEnv() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv(EnvPrefix+"DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	applyStringEnv(EnvPrefix+"MONGO_DATABASE", &c.MongoDatabase)
	if err = applyDurationEnv(EnvPrefix+"CACHE_OWNER_TTL", &c.CacheOwnerTTL); err != nil {
		return err
	}
	if err = applyIntEnv(EnvPrefix+"HISTORY_DEFAULT_PAGE_SIZE", &c.HistoryDefaultPageSize); err != nil {
		return err
	}
	if err = applyIntEnv(EnvPrefix+"HISTORY_MAX_PAGE_SIZE", &c.HistoryMaxPageSize); err != nil {
		return err
	}
	if c.HistoryDefaultPageSize > c.HistoryMaxPageSize {
		return fmt.Errorf("invalid %sHISTORY_DEFAULT_PAGE_SIZE: %d exceeds max page size %d",
			EnvPrefix, c.HistoryDefaultPageSize, c.HistoryMaxPageSize)
	}

	if raw := strings.TrimSpace(os.Getenv(EnvPrefix + "MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid %sMAX_BODY_SIZE: %w", EnvPrefix, parseErr)
		}
		c.MaxBodySize = size
	}

	if err = applyBoolEnv(EnvPrefix+"CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv(EnvPrefix+"CORS_ORIGINS", &c.CORSOrigins)

	if err = applyBoolEnv(EnvPrefix+"TRACING_INSECURE", &c.TracingInsecure); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPrefix + "TRACING_SAMPLE_RATIO")); raw != "" {
		ratio, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil || ratio < 0 || ratio > 1 {
			return fmt.Errorf("invalid %sTRACING_SAMPLE_RATIO: %q", EnvPrefix, raw)
		}
		c.TracingSampleRatio = ratio
	}

	c.APIKeys = loadAPIKeysFromEnv()
	return nil
}

// loadAPIKeysFromEnv scans env vars matching COLLECTION_SERVICE_API_KEYS_<CLIENT_ID>=<key>[,<key>...]
// and returns a map from key value to clientId.
func loadAPIKeysFromEnv() map[string]string {
	const prefix = EnvPrefix + "API_KEYS_"
	result := map[string]string{}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		eqIdx := strings.IndexByte(env, '=')
		if eqIdx < 0 {
			continue
		}
		clientID := strings.ToLower(strings.TrimSpace(env[len(prefix):eqIdx]))
		if clientID == "" {
			continue
		}
		for _, key := range strings.Split(env[eqIdx+1:], ",") {
			keyValue := strings.TrimSpace(key)
			if keyValue == "" {
				continue
			}
			result[keyValue] = clientID
		}
	}
	return result
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

// parseDuration accepts Go durations (30s, 5m) and the ISO-8601 PT#H#M#S form.
func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
