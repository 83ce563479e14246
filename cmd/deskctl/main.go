// Command deskctl administers an agentdesk deployment: schema migrations,
// bootstrap users and session revocation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/cache"
	"github.com/agentdesk/agentdesk/internal/logging"
	"github.com/agentdesk/agentdesk/internal/repository"
)

const commandTimeout = 30 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	databaseURL string
	redisURL    string
	output      string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "deskctl",
		Short: "deskctl - administer an agentdesk deployment",
		Long: `deskctl talks to the agentdesk database and cache directly.
Connection strings default to DATABASE_URL and REDIS_URL.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&g.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis connection string (optional)")
	rootCmd.PersistentFlags().StringVarP(&g.output, "output", "o", "plain", "Output format: plain or json")

	rootCmd.AddCommand(newMigrateCommand(g))
	rootCmd.AddCommand(newUserCommand(g))
	rootCmd.AddCommand(newSessionCommand(g))

	return rootCmd
}

// openRepository connects to PostgreSQL with the --database-url flag.
func (g *globals) openRepository(ctx context.Context) (*repository.Repository, error) {
	if g.databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	repo, err := repository.New(ctx, g.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %s", logging.SanitizeError(err, g.databaseURL))
	}
	return repo, nil
}

// openCache connects to Redis when --redis-url is set. It returns nil otherwise.
func (g *globals) openCache(ctx context.Context) (*cache.Cache, error) {
	if g.redisURL == "" {
		return nil, nil
	}
	c, err := cache.New(ctx, g.redisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %s", logging.SanitizeError(err, g.redisURL))
	}
	return c, nil
}

// render writes v as indented JSON or as sorted key: value lines.
func (g *globals) render(w io.Writer, v map[string]any) error {
	switch g.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "plain", "":
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "%s: %v\n", k, v[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", g.output)
	}
}
