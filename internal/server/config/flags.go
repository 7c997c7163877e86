package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-n string   JWT issuer claim
//	-u string   JWT audience claim
//	-t int      access token validity, minutes
//	-r int      refresh token validity, hours
//	-w int      sweeper interval, hours
//	-o bool     rotate refresh tokens on use
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the -c/-config flags handled by
// the JSON loader.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-n", "-u", "-t", "-r", "-w", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.JWTIssuer, "n", config.JWTIssuer, "JWT issuer claim")
	fs.StringVar(&config.JWTAudience, "u", config.JWTAudience, "JWT audience claim")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Hours()), "refresh_token_validity_duration (in hours)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Hours()), "sweep_interval (in hours)")

	fs.BoolVar(&config.RotateOnUse, "o", config.RotateOnUse, "rotate refresh token on use")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Hour
	config.SweepInterval = time.Duration(*sweepInterval) * time.Hour
}
