package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheColorRed/hasura-query-builder/internal/app"
	"github.com/TheColorRed/hasura-query-builder/internal/auth"
	"github.com/TheColorRed/hasura-query-builder/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the bearer token the configured auth mode produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, _, err := app.InitLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := checkConfig(cfg, logger); err != nil {
				return err
			}
			src, err := cfg.Auth.TokenSource(cmd.Context())
			if err != nil {
				return err
			}
			if src == nil {
				return errors.New("auth.mode is not set")
			}
			tok, err := src.Token()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return err
		},
	}
	cmd.AddCommand(newKeygenCmd())
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var (
		dir  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write an RSA key pair for minting RS256 tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privatePath, publicPath, err := auth.GenerateKeyPair(dir, bits)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", privatePath, publicPath)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".auth", "Output directory for keys")
	cmd.Flags().IntVar(&bits, "bits", auth.DefaultKeyBits, "RSA key size")
	return cmd
}
