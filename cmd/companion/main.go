package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/becomeliminal/nim-memory/config"
)

var (
	v = config.New()

	rootCmd = &cobra.Command{
		Use:   "companion",
		Short: "A companion chat bot that remembers the people it talks to.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Ignore a missing .env; the environment may already be set.
			config.LoadDotEnv()
			setupLogging(v.GetString("log-level"))
			return nil
		},
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a config file (yaml, toml or json)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("driver", "sqlite", "store driver (sqlite, postgres)")
	flags.String("dsn", "companion.db", "store data source name")
	flags.String("index-path", "", `chromem side-car index: "memory" or a directory`)
	flags.String("user", "", "user id")
	flags.String("character", "", "character id")

	bind(flags.Lookup("config"), "config")
	bind(flags.Lookup("log-level"), "log-level")
	bind(flags.Lookup("driver"), "store.driver")
	bind(flags.Lookup("dsn"), "store.dsn")
	bind(flags.Lookup("index-path"), "store.index-path")
	bind(flags.Lookup("user"), "user")
	bind(flags.Lookup("character"), "character")

	rootCmd.AddCommand(chatCmd, profileCmd, searchCmd, forgetCmd, migrateCmd, reindexCmd)
}

func bind(flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// pair returns the (user, character) key from flags or environment.
func pair() (string, string, error) {
	userID, characterID := v.GetString("user"), v.GetString("character")
	if userID == "" || characterID == "" {
		return "", "", fmt.Errorf("--user and --character are required")
	}
	return userID, characterID, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
