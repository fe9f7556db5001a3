package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbURL   string
	verbose bool

	logger zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cobble",
	Short: "Cobble - relational graph loading and persistence for PostgreSQL",
	Long: `Cobble maps tagged Go structs onto PostgreSQL tables and loads
entity graphs through composable strategies.

Features:
  - Unit-of-work sessions with an identity map and atomic commit
  - Join-fetch and batched secondary fetch, freely nested per query
  - Order/product association rows with captured unit prices
  - Struct-tag schemas (belongsTo, hasOne, hasMany, manyToMany)`,
	Version: "0.4.1",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// databaseURL resolves the connection string: the --db flag wins,
// then DATABASE_URL from the environment or a .env file.
func databaseURL() (string, error) {
	if dbURL != "" {
		return dbURL, nil
	}
	_ = godotenv.Load()
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return "", fmt.Errorf("failed to read environment: %w", err)
	}
	if url := k.String("database_url"); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("no database configured: pass --db or set DATABASE_URL")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}
