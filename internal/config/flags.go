package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags overlays cfg with the flags it recognizes in args. Other
// flags, such as -c, are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-b", "-l", "-v", "-n", "-p", "-d", "-s", "-t", "-e", "-k"})

	fs := flag.NewFlagSet("gophchat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "backend: memory or cloud")
	fs.StringVar(&cfg.LocalDBPath, "l", cfg.LocalDBPath, "local SQLite file")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")
	fs.IntVar(&cfg.PostsPageSize, "n", cfg.PostsPageSize, "posts per page")
	fs.StringVar(&cfg.FirestoreProject, "p", cfg.FirestoreProject, "Firestore project ID")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "auth database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "JWT secret key")
	tokenValidity := fs.Int("t", int(cfg.TokenValidity.Hours()), "session token validity (in hours)")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3 endpoint")
	fs.StringVar(&cfg.S3Bucket, "k", cfg.S3Bucket, "S3 bucket")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.TokenValidity = time.Duration(*tokenValidity) * time.Hour
	return nil
}
