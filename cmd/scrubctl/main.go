package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tendant/signed-upload/pkg/signedupload/client"
	"github.com/tendant/signed-upload/pkg/signedupload/config"
	"github.com/tendant/signed-upload/pkg/signedupload/upload"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scrubctl",
		Short: "Request signed upload credentials and upload files",
		Long: `scrubctl talks to the credential issuer and the media storage API.

Settings come from SIGNED_UPLOAD_* environment variables; flags override them.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("issuer", "", "issuer URL (SIGNED_UPLOAD_ISSUER_URL)")
	rootCmd.PersistentFlags().String("transport", "", "issuer transport: direct or functions (SIGNED_UPLOAD_TRANSPORT)")
	rootCmd.PersistentFlags().String("token", "", "bearer token of the session (SIGNED_UPLOAD_TOKEN)")
	rootCmd.PersistentFlags().String("anon-key", "", "gateway anon key for the functions transport (AUTH_ANON_KEY)")
	rootCmd.PersistentFlags().String("media-url", "", "storage API base URL (MEDIA_UPLOAD_BASE_URL)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewCredentialCommand())
	rootCmd.AddCommand(NewProbeCommand())
	rootCmd.AddCommand(NewUploadCommand())
	rootCmd.AddCommand(NewTokenCommand())

	return rootCmd
}

// loadConfig reads the environment and applies the persistent flag overrides
func loadConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("issuer"); v != "" {
		cfg.IssuerURL = v
	}
	if v, _ := flags.GetString("transport"); v != "" {
		cfg.Transport = v
	}
	if v, _ := flags.GetString("token"); v != "" {
		cfg.Token = v
	}
	if v, _ := flags.GetString("anon-key"); v != "" {
		cfg.AnonKey = v
	}
	if v, _ := flags.GetString("media-url"); v != "" {
		cfg.MediaBaseURL = v
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func newClient(cmd *cobra.Command, cfg config.ClientConfig) (*client.Client, error) {
	c, err := client.New(cfg.Client(), client.StaticToken(cfg.Token))
	if err != nil {
		return nil, err
	}
	c.SetLogger(newLogger(cmd))
	return c, nil
}

func newExecutor(cfg config.ClientConfig, resourceType string) *upload.Executor {
	opts := cfg.ExecutorOptions()
	if resourceType != "" {
		opts = append(opts, upload.WithResourceType(resourceType))
	}
	return upload.NewExecutor(opts...)
}
