package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/devpulse/internal/config"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/http/server"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/observability/tracing"
	"github.com/dropDatabas3/devpulse/internal/store"

	// Registran los adapters de store vía init()
	_ "github.com/dropDatabas3/devpulse/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/devpulse/internal/store/adapters/pg"
	_ "github.com/dropDatabas3/devpulse/internal/store/adapters/sqlite"
)

// version se setea con -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	var cfgPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "devpulse",
		Short:         "Backend de DevPulse: conexiones OAuth a GitHub y Jira",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			c, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.App.LogLevel,
				ServiceName: "devpulse",
				Version:     version,
			})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("DEVPULSE_CONFIG"), "Archivo YAML de configuración (env DEVPULSE_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Levanta el servidor HTTP",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Aplica las migraciones del store configurado",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd.Context(), cfg)
			},
		},
		connectionsCmd(&cfg),
		tokenCmd(&cfg),
		&cobra.Command{
			Use:   "version",
			Short: "Muestra la versión",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}

	app, cleanup, err := server.Build(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Warn("cleanup error", logger.Err(err))
		}
	}()

	// los stores SQL arrancan con el esquema al día
	if res, err := store.Migrate(ctx, app.Store); err != nil {
		return fmt.Errorf("migrations: %w", err)
	} else if len(res.Applied) > 0 {
		log.Info("migrations applied", logger.Any("versions", res.Applied))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr), logger.String("public_base_url", cfg.Server.PublicBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("graceful shutdown failed", logger.Err(err))
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn("tracing shutdown failed", logger.Err(err))
	}
	return nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	st, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := store.Migrate(ctx, st)
	if err != nil {
		return err
	}
	fmt.Printf("driver=%s applied=%v skipped=%v took=%s\n", cfg.Storage.Driver, res.Applied, res.Skipped, res.Duration)
	return nil
}

// connectionsCmd inspecciona conexiones sin exponer tokens completos.
func connectionsCmd(cfg **config.Config) *cobra.Command {
	var uid string
	show := &cobra.Command{
		Use:   "show",
		Short: "Lista las conexiones de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uid == "" {
				return fmt.Errorf("--uid es requerido")
			}
			ctx := cmd.Context()
			st, err := server.OpenStore(ctx, *cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.Connections().List(ctx, uid)
			if err != nil {
				return err
			}
			type row struct {
				Provider     types.ProviderKind `json:"provider"`
				Status       string             `json:"status"`
				Reason       string             `json:"reason,omitempty"`
				Login        string             `json:"login,omitempty"`
				AccessToken  string             `json:"accessToken"`
				RefreshToken string             `json:"refreshToken,omitempty"`
				ExpiresAt    *time.Time         `json:"expiresAt,omitempty"`
				UpdatedAt    time.Time          `json:"updatedAt"`
			}
			out := make([]row, 0, len(list))
			for _, c := range list {
				out = append(out, row{
					Provider:     c.Provider,
					Status:       string(c.Status),
					Reason:       c.StatusReason,
					Login:        c.Profile.Login,
					AccessToken:  types.Preview(c.AccessToken),
					RefreshToken: types.Preview(c.RefreshToken),
					ExpiresAt:    c.ExpiresAt,
					UpdatedAt:    c.UpdatedAt,
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	show.Flags().StringVar(&uid, "uid", "", "uid del usuario")

	c := &cobra.Command{Use: "connections", Short: "Inspección de conexiones OAuth"}
	c.AddCommand(show)
	return c
}

// tokenCmd emite un ID token HS256 para probar la API en local (identity.mode=hmac).
func tokenCmd(cfg **config.Config) *cobra.Command {
	var uid, email string
	var ttl time.Duration
	c := &cobra.Command{
		Use:   "token",
		Short: "Emite un ID token de desarrollo (solo identity.mode=hmac)",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := *cfg
			if conf.Identity.Mode != "hmac" {
				return fmt.Errorf("token requiere identity.mode=hmac (actual: %s)", conf.Identity.Mode)
			}
			if conf.App.Env == "prod" {
				return fmt.Errorf("token no está disponible en prod")
			}
			if uid == "" {
				return fmt.Errorf("--uid es requerido")
			}
			v := identity.NewHMACVerifier([]byte(conf.Identity.HMACSecret), conf.Identity.Issuer, conf.Identity.Audience)
			tok, err := v.Sign(identity.Identity{UID: uid, Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	c.Flags().StringVar(&uid, "uid", "", "uid del usuario")
	c.Flags().StringVar(&email, "email", "", "email (opcional)")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "vigencia del token")
	return c
}
