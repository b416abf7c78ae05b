package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeguard/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		addr string
		ai   aiFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := buildRuntime(ctx, g, runtimeOptions{ai: &ai, persist: true, publish: true})
			if err != nil {
				return err
			}
			defer env.Close()

			if addr == "" {
				addr = env.cfg.HTTP.Addr
			}
			if addr == "" {
				addr = ":8080"
			}
			srv := api.NewServer(env.analyzer,
				api.WithStore(env.store),
				api.WithRules(env.rules),
				api.WithMetrics(env.metrics),
				api.WithLogger(env.logger),
			)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go reloadRulesOnHangup(ctx, g, env)

			errCh := make(chan error, 1)
			go func() {
				env.logger.Info("listening", zap.String("addr", addr), zap.Bool("ai", env.aiReady))
				fmt.Fprintf(cmd.ErrOrStderr(), "codeguard api listening on %s\n", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			env.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "Listen address (default from config, else :8080)")
	f.BoolVar(&ai.enabled, "ai", false, "Enable AI review for requests that ask for it")
	f.StringVar(&ai.profile, "ai-profile", "", "AI profile name")
	f.StringVar(&ai.provider, "ai-provider", "", "AI provider: openai|anthropic|gemini")
	f.StringVar(&ai.model, "ai-model", "", "AI model override")
	f.StringVar(&ai.fallback, "ai-fallback", "", "Result on AI failure: none|demo")
	f.DurationVar(&ai.timeout, "ai-timeout", 0, "AI request timeout")
	return cmd
}

// reloadRulesOnHangup re-reads builtins and the rules directory on SIGHUP. A failed
// reload keeps the current rule set.
func reloadRulesOnHangup(ctx context.Context, g *globalOptions, env *runtimeEnv) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := loadRules(g, env.cfg, env.logger)
			if err != nil {
				env.logger.Error("rule reload failed", zap.Error(err))
				continue
			}
			env.rules.Replace(next.All())
			env.logger.Warn("rules reloaded", zap.Int("count", next.Len()))
		}
	}
}
