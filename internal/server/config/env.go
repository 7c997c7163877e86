package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables, loading a .env
// file first if one is present in the working directory. Unset or malformed
// variables leave the current value untouched.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("TOKENVAULT_ADDRESS"); v != "" {
		config.EndpointAddrHTTP = v
	}
	if v := os.Getenv("TOKENVAULT_DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("TOKENVAULT_SECRET_KEY"); v != "" {
		config.SecretKey = v
	}
	if v := os.Getenv("TOKENVAULT_JWT_ISSUER"); v != "" {
		config.JWTIssuer = v
	}
	if v := os.Getenv("TOKENVAULT_JWT_AUDIENCE"); v != "" {
		config.JWTAudience = v
	}
	if v := os.Getenv("TOKENVAULT_ACCESS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.AccessTokenValidityDuration = d
		}
	}
	if v := os.Getenv("TOKENVAULT_REFRESH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RefreshTokenValidityDuration = d
		}
	}
	if v := os.Getenv("TOKENVAULT_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.SweepInterval = d
		}
	}
	if v := os.Getenv("TOKENVAULT_ROTATE_ON_USE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.RotateOnUse = b
		}
	}
}
