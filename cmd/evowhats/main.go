// @title EvoWhats admin API
// @version 1.0
// @description Open line to WhatsApp gateway coordination.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leosozza/evowhats/config"
	"github.com/leosozza/evowhats/internal/adminapi"
	"github.com/leosozza/evowhats/internal/app"
	"github.com/leosozza/evowhats/internal/webserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evowhats",
		Short: "Open line to WhatsApp gateway connection coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml)")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(initdbCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(tokenCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, webhook ingress and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func migrateCmd() *cobra.Command {
	var track bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Release()
			return a.MigrateDB(track)
		},
	}
	cmd.Flags().BoolVar(&track, "debug", false, "log migration SQL")
	return cmd
}

func initdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Drop and recreate every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Release()
			a.InitDb()
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Gateway.APIKey = mask(masked.Gateway.APIKey)
			masked.Crm.ClientSecret = mask(masked.Crm.ClientSecret)
			masked.Web.WebhookSecret = mask(masked.Web.WebhookSecret)
			masked.Web.JWTSecret = mask(masked.Web.JWTSecret)
			masked.Database.Passwd = mask(masked.Database.Passwd)
			out, err := yaml.Marshal(&masked)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			token, err := webserver.IssueToken(cfg.Web.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "******"
}

func bootstrap() (*app.Application, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	a := app.NewApplication(cfg)
	a.Init(cfg)
	return a, nil
}

func serve() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Release()

	srv := webserver.Init(a)
	adminapi.Init()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		zap.S().Infof("received %s, shutting down", s)
	case err := <-errCh:
		if err != nil {
			zap.L().Error("webserver stopped", zap.Error(err))
			return err
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
