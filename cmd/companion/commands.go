package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a character on the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, characterID, err := pair()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server failed", "component", "companion", "error", err)
				}
			}()
			defer srv.Shutdown(context.Background())
		}

		system, _ := cmd.Flags().GetString("system")
		return chatLoop(ctx, a.engine, userID, characterID, system, cfg.Memory.HistoryTurns)
	},
}

// chatLoop reads one message per line until EOF or interrupt.
func chatLoop(ctx context.Context, e *engine.Engine, userID, characterID, system string, historyTurns int) error {
	var history []memory.Message
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}

		out, err := e.Run(ctx, &engine.Input{
			UserID:       userID,
			CharacterID:  characterID,
			UserMessage:  text,
			History:      history,
			SystemPrompt: system,
			StreamCallback: func(chunk string, done bool) {
				if done {
					fmt.Println()
					return
				}
				fmt.Print(chunk)
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("reply failed", "component", "companion", "error", err)
			fmt.Print("> ")
			continue
		}

		history = append(history,
			memory.Message{Role: "user", Content: text},
			memory.Message{Role: "assistant", Content: out.Text},
		)
		if historyTurns > 0 && len(history) > 2*historyTurns {
			history = history[len(history)-2*historyTurns:]
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show what a character remembers about a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd, func(ctx context.Context, a *app, userID, characterID string) error {
			profile, err := a.manager.Profile(ctx, userID, characterID)
			if err != nil {
				return err
			}
			printProfile(profile)

			limit, _ := cmd.Flags().GetInt("limit")
			episodes, err := a.manager.Recent(ctx, userID, characterID, limit)
			if err != nil {
				return err
			}
			fmt.Printf("\nEpisodes (%d newest):\n", len(episodes))
			for _, e := range episodes {
				fmt.Printf("  #%d %s %s (strength %.2f, recalled %d)\n",
					e.ID, e.CreatedAt.Format("2006-01-02"), e.Format(120), e.Strength, e.RecallCount)
			}
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank episodes against a query without recording a recall",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, a *app, userID, characterID string) error {
			k, _ := cmd.Flags().GetInt("k")
			hits, err := a.manager.Search(ctx, userID, characterID, strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("no relevant memories")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%.3f (sim %.3f) #%d %s\n", h.Score, h.Similarity, h.Episode.ID, h.Episode.Format(120))
			}
			return nil
		})
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the profile and every episode of a user/character pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd, func(ctx context.Context, a *app, userID, characterID string) error {
			if err := a.manager.Forget(ctx, userID, characterID); err != nil {
				return err
			}
			fmt.Printf("forgot everything about %s for %s\n", userID, characterID)
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Printf("%s schema is up to date\n", cfg.Store.Driver)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the chromem side-car index of a pair from the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd, func(ctx context.Context, a *app, userID, characterID string) error {
			if a.index == nil {
				return errors.New("no side-car index configured (set --index-path)")
			}
			n, err := a.index.Rebuild(ctx, userID, characterID)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d episodes\n", n)
			return nil
		})
	},
}

func init() {
	chatCmd.Flags().String("system", "", "character system prompt")
	chatCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	profileCmd.Flags().Int("limit", 10, "number of episodes to list")
	searchCmd.Flags().Int("k", 0, "number of results (default memory.search-k)")
}

// withManager runs fn with a store-only app (no model credentials needed).
func withManager(cmd *cobra.Command, fn func(ctx context.Context, a *app, userID, characterID string) error) error {
	userID, characterID, err := pair()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a, userID, characterID)
}

func printProfile(p *memory.Profile) {
	if p == nil {
		fmt.Println("No profile yet.")
		return
	}
	scalar := func(label string, v *string) {
		if v != nil {
			fmt.Printf("  %-11s %s\n", label+":", *v)
		}
	}
	list := func(label string, values []string) {
		if len(values) > 0 {
			fmt.Printf("  %-11s %s\n", label+":", strings.Join(values, ", "))
		}
	}
	fmt.Printf("Profile of %s (as seen by %s), updated %s:\n", p.UserID, p.CharacterID, p.UpdatedAt.Format("2006-01-02 15:04"))
	scalar("name", p.DisplayName)
	scalar("nickname", p.Nickname)
	scalar("birthday", p.Birthday)
	scalar("occupation", p.Occupation)
	scalar("location", p.Location)
	list("likes", p.Likes)
	list("dislikes", p.Dislikes)
	list("interests", p.Interests)
}
