// Package config validates the environment variables the wsrelayd demo
// binary needs at startup, following the teacher's internal/v1/config
// package: a single ValidateEnv call that collects every error before
// returning, rather than failing on the first missing variable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
)

// Config holds validated environment configuration for wsrelayd.
type Config struct {
	// Listen address; defaults to ":8080" and must be a valid host:port.
	Addr string

	// Optional, with defaults.
	LogLevel       string
	DevMode        bool
	AllowedOrigins []string

	// JWT authentication. Empty JWKSURL disables the authenticator.
	JWKSURL     string
	JWTIssuer   string
	JWTAudience string

	// Rate limiting. Empty RedisAddr falls back to an in-memory limiter.
	RedisAddr     string
	RedisPassword string
	RateLimitRule string

	TLSCertFile string
	TLSKeyFile  string
}

// ValidateEnv reads and validates environment configuration, returning
// every validation failure at once rather than stopping at the first.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Addr = getEnvOrDefault("WSRELAY_ADDR", ":8080")
	if !isValidHostPort(cfg.Addr) {
		errs = append(errs, fmt.Sprintf("WSRELAY_ADDR must be in format 'host:port' or ':port' (got %q)", cfg.Addr))
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.JWKSURL = os.Getenv("JWKS_URL")
	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")
	cfg.JWTAudience = os.Getenv("JWT_AUDIENCE")
	if cfg.JWKSURL != "" && (cfg.JWTIssuer == "" || cfg.JWTAudience == "") {
		errs = append(errs, "JWT_ISSUER and JWT_AUDIENCE are required when JWKS_URL is set")
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RateLimitRule = getEnvOrDefault("RATE_LIMIT_WS", "100-M")

	cfg.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, "TLS_CERT_FILE and TLS_KEY_FILE must both be set or both be empty")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	_, portStr, err := splitHostPort(addr)
	if err != nil {
		return false
	}
	port, err := strconv.Atoi(portStr)
	return err == nil && port >= 1 && port <= 65535
}

// splitHostPort tolerates the ":8080" shorthand net.SplitHostPort already
// accepts, kept local so this package stays free of a net import.
func splitHostPort(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing port in address %q", addr)
	}
	return addr[:i], addr[i+1:], nil
}

func logValidatedConfig(cfg *Config) {
	logging.Info("environment configuration validated",
		zap.String("addr", cfg.Addr),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("dev_mode", cfg.DevMode),
		zap.Bool("jwt_enabled", cfg.JWKSURL != ""),
		zap.Bool("redis_enabled", cfg.RedisAddr != ""),
		zap.String("rate_limit_ws", cfg.RateLimitRule),
		zap.Bool("tls_enabled", cfg.TLSCertFile != ""),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
