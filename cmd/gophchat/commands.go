package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/gophchat/internal/backend/pgauth"
	"github.com/dmitrijs2005/gophchat/internal/cli"
	"github.com/dmitrijs2005/gophchat/internal/config"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/localstore"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const flagsHelp = `Flags (passed through to the config loader):
  -c, -config string   config file (.toml or .json)
  -b string            backend: memory or cloud (default "memory")
  -l string            local SQLite file (default "gophchat.db")
  -v string            log level (default "info")
  -n int               posts per page (default 3)
  -p string            Firestore project ID
  -d string            auth database DSN
  -s string            JWT secret key
  -t int               session token validity, hours (default 720)
  -e string            S3 endpoint
  -k string            S3 bucket (default "gophchat")`

// Flags are owned by internal/config, so cobra hands them over untouched.
var rootCmd = &cobra.Command{
	Use:   "gophchat",
	Short: "Chat, profiles and posts from the terminal",
	Long: `gophchat starts an interactive session. Type 'help' at the prompt for
the available commands.

` + flagsHelp,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return cmd.Help()
		}

		cfg, err := config.Load(args)
		if err != nil {
			return err
		}

		logger := logging.NewJSON(cmd.ErrOrStderr(), cfg.LogLevel)

		app, err := cli.NewApp(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}

		app.Run(cmd.Context())
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the local store and, in cloud mode, the auth database",
	Long: `Apply schema migrations and exit.

Examples:
  gophchat migrate -l ~/.gophchat/state.db
  gophchat migrate -c gophchat.toml

` + flagsHelp,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if wantsHelp(args) {
			return cmd.Help()
		}

		cfg, err := config.Load(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		path, err := filex.EnsureParentDir(cfg.LocalDBPath)
		if err != nil {
			return err
		}
		db, err := localstore.Open(ctx, path)
		if err != nil {
			return err
		}
		if err := db.Close(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "local store ready:", path)

		if cfg.Backend != config.BackendCloud {
			return nil
		}

		pg, err := pgauth.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := pg.Close(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "auth database ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func wantsHelp(args []string) bool {
	return slices.ContainsFunc(args, func(a string) bool {
		return a == "-h" || a == "-help" || a == "--help"
	})
}
