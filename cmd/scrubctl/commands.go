package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
	"github.com/tendant/signed-upload/pkg/signedupload/client"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
	"github.com/tendant/signed-upload/pkg/signedupload/upload"
)

func NewCredentialCommand() *cobra.Command {
	var publicID string
	var reveal bool

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Request a signed upload credential",
		Long:  "Request a credential from the issuer and print it in normalized form. The signature is redacted unless --reveal is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			raw, err := c.RequestCredential(ctx, client.Request{PublicID: publicID})
			if err != nil {
				return fmt.Errorf("failed to request credential: %w", err)
			}
			cred, err := credential.Normalize(raw)
			if err != nil {
				return fmt.Errorf("issuer returned an unusable credential: %w", err)
			}
			if !reveal {
				cred = cred.Redacted()
			}
			return printJSON(cmd, cred.Raw())
		},
	}

	cmd.Flags().StringVar(&publicID, "public-id", "", "requested public id")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full signature")

	return cmd
}

func NewProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check the issuer configuration without signing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			diag, err := c.Probe(ctx)
			if err != nil {
				return fmt.Errorf("probe failed: %w", err)
			}
			if err := printJSON(cmd, diag); err != nil {
				return err
			}
			if !diag.Ready {
				return fmt.Errorf("issuer is not ready")
			}
			return nil
		},
	}
}

func NewUploadCommand() *cobra.Command {
	var publicID string
	var resourceType string
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file with a freshly issued credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(path))
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			out := cmd.ErrOrStderr()
			uploader := client.NewUploader(c, newExecutor(cfg, resourceType),
				client.WithLogger(newLogger(cmd)),
				client.WithObserver(func(t client.Transition) {
					if verbose {
						fmt.Fprintf(out, "%s -> %s\n", t.From, t.To)
					}
				}),
				client.WithProgress(func(sent, total int64) {
					if verbose {
						fmt.Fprintf(out, "\r%d / %d bytes", sent, total)
					}
				}),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			file := upload.File{
				Name:        filepath.Base(path),
				Reader:      f,
				ContentType: contentType,
			}
			result, err := uploader.UploadAs(ctx, file, publicID)
			if verbose {
				fmt.Fprintln(out)
			}
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&publicID, "public-id", "", "requested public id")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "resource type (auto, image, video, raw)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (detected from the extension otherwise)")

	return cmd
}

func NewTokenCommand() *cobra.Command {
	var secret string
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token for an issuer running with AUTH_MODE=jwt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or AUTH_JWT_SECRET is required")
			}
			token, err := auth.NewJWTVerifier([]byte(secret)).IssueToken(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret shared with the issuer")
	cmd.Flags().StringVar(&subject, "subject", "", "subject id the token proves")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
