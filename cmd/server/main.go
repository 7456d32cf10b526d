package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example/regcheck-api/app"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/logging"
	"example/regcheck-api/app/models"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "regcheck",
		Short:         "Vehicle history lookups with credit billing",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(grantCreditsCmd())
	rootCmd.AddCommand(promoteCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Logs)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Close(closeCtx); err != nil {
					log.Warn().Err(err).Msg("Store close failed")
				}
			}()

			httpServer := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
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

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema or indexes for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			st, err := app.OpenStore(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			if err := app.Migrate(ctx, st); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("driver", cfg.DB.Driver).Msg("Migration complete")
			return nil
		},
	}
}

func grantCreditsCmd() *cobra.Command {
	var (
		accountID string
		product   string
		quantity  int
	)
	cmd := &cobra.Command{
		Use:   "grant-credits",
		Short: "Credit an account without a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseProduct(product)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			srv, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())

			tx, err := srv.Payments().GrantFreeCredits(ctx, accountID, p, quantity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d %s credits to %s (transaction %s)\n", tx.Credits, tx.Product, tx.AccountID, tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&product, "product", "", "MOT, VDI or VALUATION")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "number of credits")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func promoteCmd() *cobra.Command {
	var (
		email string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Set the role of an existing account",
		Long:  "Admin access is only ever granted here. Registration always creates USER accounts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			srv, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())

			a, err := srv.Accounts().SetRole(ctx, email, models.Role(strings.ToLower(role)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", a.Email, a.ID, a.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "user or admin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
