package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Endpoint is one balancer-manager page to manage.
type Endpoint struct {
	Name string // unique, used in logs, metrics, Redis keys and API paths
	URL  string
}

// ClientConfig holds what the CLI needs to talk to a balancer-manager.
type ClientConfig struct {
	Username           string
	Password           string
	InsecureSkipVerify bool
	RequestTimeout     time.Duration // per HTTP request to httpd
	ParseWorkers       int           // 0 => parse inline on the calling goroutine
}

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	HTTPTimeout     time.Duration // per API request, edits included (ex: 30s)

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Endpoints []Endpoint
	Client    ClientConfig

	PollInterval time.Duration // ex: 30s
	ProfileFile  string        // optional desired-state profile (empty = compliance disabled)
	Enforce      bool          // drive endpoints back to the profile after each poll
	EnforceForce bool          // allow enforcement to remove the last eligible route

	// Redis (optional, empty RedisAddr = publishing disabled)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisWarnThreshold  int           // warn after this many attempts
	RedisClusterTTL     time.Duration // expiry of published cluster views
	ChangeHistory       int           // reconcile changes kept per endpoint

	AllowedCIDRS []string // optional, restrict mutating and infra endpoints (e.g. "10.0.0.0/8, 1.2.3.4")
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

// Load reads the daemon configuration. It panics when a required value is
// missing or malformed.
func Load() *Config {
	endpoints, err := parseEndpoints(requireEnvSlice("BALMGR_ENDPOINTS"))
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid BALMGR_ENDPOINTS: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("BALMGR_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("BALMGR_SHUTDOWN_TIMEOUT", 5*time.Second),
		HTTPTimeout:     mustDuration("BALMGR_HTTP_TIMEOUT", 30*time.Second),

		// Logging
		LogLevel:  getenv("BALMGR_LOG_LEVEL", "info"),
		PrettyLog: mustBool("BALMGR_PRETTY_LOG", false),

		// Balancer-manager endpoints
		Endpoints:    endpoints,
		Client:       LoadClient(),
		PollInterval: mustDuration("BALMGR_POLL_INTERVAL", 30*time.Second),
		ProfileFile:  getenv("BALMGR_PROFILE_FILE", ""),
		Enforce:      mustBool("BALMGR_ENFORCE", false),
		EnforceForce: mustBool("BALMGR_ENFORCE_FORCE", false),

		// Redis settings
		RedisAddr:           getenv("BALMGR_REDIS_ADDR", ""),
		RedisUser:           getenv("BALMGR_REDIS_USERNAME", ""),
		RedisPassword:       getenv("BALMGR_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("BALMGR_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		RedisClusterTTL:     mustDuration("BALMGR_REDIS_CLUSTER_TTL", 10*time.Minute),
		ChangeHistory:       getenvInt("BALMGR_CHANGE_HISTORY", 100),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("BALMGR_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("BALMGR_TRUST_PROXY", false),
	}

	if cfg.EnforceForce && !cfg.Enforce {
		log.Printf("[WARN] BALMGR_ENFORCE_FORCE has no effect without BALMGR_ENFORCE=true")
	}
	if cfg.Enforce && cfg.ProfileFile == "" {
		panic("❌ FATAL: BALMGR_ENFORCE=true requires BALMGR_PROFILE_FILE")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = redacted(cfg.RedisPassword)
		cfgCopy.Client.Password = redacted(cfg.Client.Password)
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// LoadClient reads the balancer-manager connection settings. Nothing is
// required, so the CLI can override every value with flags.
func LoadClient() ClientConfig {
	return ClientConfig{
		Username:           getenv("BALMGR_USERNAME", ""),
		Password:           getenv("BALMGR_PASSWORD", ""),
		InsecureSkipVerify: mustBool("BALMGR_INSECURE_SKIP_VERIFY", false),
		RequestTimeout:     mustDuration("BALMGR_REQUEST_TIMEOUT", 10*time.Second),
		ParseWorkers:       getenvInt("BALMGR_PARSE_WORKERS", 0),
	}
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "***REDACTED***"
}

// parseEndpoints accepts "name=url" or bare "url" entries. A bare URL is
// named after its host, with ':' replaced by '_'.
func parseEndpoints(entries []string) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		name, raw, found := strings.Cut(e, "=")
		if !found || strings.Contains(name, "://") {
			// "=" inside a query string, not a name separator.
			name, raw = "", e
		}
		name, raw = strings.TrimSpace(name), strings.TrimSpace(raw)

		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("endpoint %q: want http(s)://host/balancer-manager", e)
		}
		if strings.Contains(name, ":") {
			return nil, fmt.Errorf("endpoint name %q must not contain ':'", name)
		}
		if name == "" {
			name = strings.ReplaceAll(u.Host, ":", "_")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate endpoint name %q", name)
		}
		seen[name] = true
		out = append(out, Endpoint{Name: name, URL: raw})
	}
	return out, nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnvSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return splitAndTrim(v)
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
