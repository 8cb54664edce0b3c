package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Splinter working directory",
	Long: `Initialize a Splinter working directory.

Creates:
  - splinter.yaml    Configuration file with documented defaults
  - build/           Generated build contexts for deployed functions
  - tmp/             Staging area for direct deployments`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
}

const configTemplate = `# Splinter configuration. Values can be overridden with
# SPLINTER_-prefixed environment variables, e.g. SPLINTER_SERVER_PORT=9000.

server:
  host: localhost
  port: 8080
  rate_limit:
    enabled: false
    max: 120
    window: 1m

database:
  path: splinter.db

auth:
  jwt:
    # Required. Also settable via SPLINTER_AUTH_JWT_SECRET.
    secret: ""
    access_ttl: 1h
  allow_registration: true

engine:
  image_prefix: splinter
  build_timeout: 5m
  execution_timeout: 90s
  remove_containers: true

deploy:
  build_path: build
  temp_path: tmp
  max_parallel_builds: 4
  cleanup_schedule: "@hourly"
  cleanup_age: 24h

logging:
  level: info
  format: console
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	cfgPath := filepath.Join(dir, "splinter.yaml")
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	for _, sub := range []string{"build", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", sub, err)
		}
	}

	log.Info().Str("config", cfgPath).Msg("Initialized")
	fmt.Println("Next steps:")
	fmt.Println("  1. Set auth.jwt.secret in splinter.yaml (or SPLINTER_AUTH_JWT_SECRET)")
	fmt.Println("  2. Run: splinter serve")
	return nil
}
