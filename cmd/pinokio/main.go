package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Humphreey/pinokio/internal/app"
	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/httpapi"
	"github.com/Humphreey/pinokio/internal/logging"
	"github.com/Humphreey/pinokio/internal/store"
)

const version = "0.1.0"

func main() {
	logging.Setup(os.Getenv("DEBUG") != "")

	rootCmd := &cobra.Command{
		Use:     "pinokio",
		Short:   "Chat-moderation aggregation and escalation sidecar",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP ingress, worker pool, scheduler, and escalation monitor",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	serveCmd.Flags().String("chats-config", "configs/config_chats.yaml", "Path to chats config")
	serveCmd.Flags().String("redis-config", "configs/config_redis.yaml", "Path to redis config")
	serveCmd.Flags().String("prompts-config", "configs/prompts.yaml", "Path to prompts config")

	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "One-shot store connectivity check",
		RunE:  runHealthcheck,
	}
	healthcheckCmd.Flags().String("redis-config", "configs/config_redis.yaml", "Path to redis config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthcheckCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	chatsPath, _ := cmd.Flags().GetString("chats-config")
	redisPath, _ := cmd.Flags().GetString("redis-config")
	promptsPath, _ := cmd.Flags().GetString("prompts-config")

	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	chats, err := config.LoadChatsConfig(chatsPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	redisCfg, err := config.LoadRedisConfig(redisPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	prompts, err := config.LoadPromptsConfig(promptsPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	coord := app.New(settings, redisCfg, chats, prompts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord.Start(ctx)

	metrics := httpapi.NewMetricsRegistry()
	srv := httpapi.NewServer(httpapi.DefaultServerConfig(port), coord.Router, coord.Store, settings.BearerToken, metrics)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serveErrCh <- err
		}
	}()

	log.Info().Int("port", port).Msg("pinokio: serving")

	select {
	case <-ctx.Done():
		log.Info().Msg("pinokio: shutdown signal received")
	case err := <-serveErrCh:
		log.Error().Err(err).Msg("pinokio: http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pinokio: http shutdown error")
	}
	coord.Shutdown(shutdownCtx)

	return nil
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	redisPath, _ := cmd.Flags().GetString("redis-config")
	redisCfg, err := config.LoadRedisConfig(redisPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	s := store.NewRedis(redisCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	fmt.Println("ok")
	return nil
}
