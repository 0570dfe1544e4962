package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/internal/version"
	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/server"
	"github.com/hrygo/intellichat/server/runner/embedding"
	"github.com/hrygo/intellichat/server/service/chat"
	"github.com/hrygo/intellichat/store"
	"github.com/hrygo/intellichat/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "intellichat",
		Short: "Chat service that recalls what you discussed in earlier conversations.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := serve(); err != nil {
				slog.Error("failed to run server", slog.String("error", err.Error()))
				os.Exit(1)
			}
		},
	}

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Embed every message that is not indexed yet, then exit.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := reindex(); err != nil {
				slog.Error("failed to reindex", slog.String("error", err.Error()))
				os.Exit(1)
			}
		},
	}
)

func newProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:   viper.GetString("mode"),
		Addr:   viper.GetString("addr"),
		Port:   viper.GetInt("port"),
		Data:   viper.GetString("data"),
		Driver: viper.GetString("driver"),
		DSN:    viper.GetString("dsn"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Version = version.GetCurrentVersion(p.Mode)
	return p, nil
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(dbDriver, p)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return s, nil
}

func newAIConfig(p *profile.Profile) (*ai.Config, error) {
	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}
	return cfg, nil
}

func serve() error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	aiConfig, err := newAIConfig(p)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	embedder, err := server.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		s.Close()
		return err
	}
	deps := server.Deps{
		Embedder: embedder,
		Index:    server.NewVectorIndex(p, s, embedder),
	}
	if aiConfig.Enabled {
		deps.LLM, err = ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			s.Close()
			return err
		}
	} else {
		slog.Warn("generation is disabled, replies will be error messages")
	}

	srv, err := server.NewServer(ctx, p, s, aiConfig, deps)
	if err != nil {
		s.Close()
		return err
	}
	printGreetings(p)

	err = srv.Start(ctx)
	srv.Shutdown(context.Background())
	return err
}

func reindex() error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	if p.VectorIndex == "memory" {
		return errors.New("reindex needs a persistent vector index, the memory index is rebuilt on every start")
	}
	aiConfig, err := newAIConfig(p)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return err
	}
	index := server.NewVectorIndex(p, s, embedder)
	defer index.Close()

	runner := embedding.NewRunner(s, chat.NewIndexer(s, embedder, index), nil, aiConfig.RAG.IndexAssistantReplies)
	indexed := runner.RunOnce(ctx)
	fmt.Printf("Indexed %d messages\n", indexed)
	return nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("intellichat")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(reindexCmd)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("IntelliChat %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Vector index: %s\n", p.VectorIndex)
	fmt.Printf("Mode: %s\n", p.Mode)
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
		fmt.Printf("Access your chats at: http://localhost:%d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
	fmt.Printf("Press Ctrl+C to stop the server\n")
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
