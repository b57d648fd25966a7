// clipkeeper: clipboard history with a hotkey-driven paste picker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"markestedt/clipkeeper/config"
	"markestedt/clipkeeper/logging"
	"markestedt/clipkeeper/storage"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "clipkeeper",
		Short: "Clipboard history manager",
		Long: `clipkeeper records clipboard changes (text, images and file lists)
and pastes any earlier item back into the window you were working in.

Press the toggle hotkey (win+v by default) to open the history dashboard.
The config file lives at %APPDATA%\clipkeeper\config.toml and is reloaded
when it changes.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path (default %APPDATA%\\clipkeeper\\config.toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: auto, text, json (overrides config)")

	root.AddCommand(
		newHistoryCmd(&flags),
		newCleanupCmd(&flags),
		newVersionCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config and sets up the global logger from it
func loadConfig(flags globalFlags) (*config.Config, string, error) {
	path := flags.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		logging.Setup(logging.ParseFormat(flags.logFormat), logging.ParseLevel(flags.logLevel))
		slog.Error("Failed to load config", "error", err, "path", path)
		return nil, "", err
	}

	format, level := cfg.Log.Format, cfg.Log.Level
	if flags.logFormat != "" {
		format = flags.logFormat
	}
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logging.Setup(logging.ParseFormat(format), logging.ParseLevel(level))

	slog.Info("Configuration loaded", "path", path)
	return cfg, path, nil
}

// openStore opens the history database that sits next to the config file
func openStore(configPath string) (*storage.DB, error) {
	db, err := storage.Open(filepath.Dir(configPath))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		return nil, err
	}
	return db, nil
}

func runAgent(ctx context.Context, flags globalFlags) error {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		return err
	}

	db, err := openStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	agent, err := NewAgent(cfg, path, db, slog.Default())
	if err != nil {
		slog.Error("Failed to create agent", "error", err)
		return err
	}

	if err := agent.Run(ctx); err != nil {
		slog.Error("Agent error", "error", err)
		return err
	}

	slog.Info("Agent stopped gracefully")
	return nil
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		query     string
		favorites bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent clipboard items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			db, err := openStore(path)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.List(cmd.Context(), storage.ListOptions{
				Limit:         limit,
				FavoritesOnly: favorites,
				Query:         query,
			})
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tCREATED\tFAV\tSUMMARY")
			for _, r := range records {
				fav := ""
				if r.Favorite {
					fav = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.CreatedAt.Local().Format(time.DateTime), fav, r.Summary())
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of items")
	cmd.Flags().StringVarP(&query, "query", "q", "", "only show text and file items containing this text")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "only show favorites")
	return cmd
}

func newCleanupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the history retention limits now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			db, err := openStore(path)
			if err != nil {
				return err
			}
			defer db.Close()

			deleted, err := db.Cleanup(cmd.Context(), cfg.History.MaxItems, cfg.History.MaxAge())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d items\n", deleted)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipkeeper %s\n", Version)
		},
	}
}
