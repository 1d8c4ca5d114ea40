package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"media-client-bridge/internal/config"
	"media-client-bridge/internal/keystore"
	"media-client-bridge/internal/keystore/keyring"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
)

var (
	loginServer   string
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a media server credential",
	Long: `Encrypts and stores the password for a (server, username) pair. The
password is read from the --password flag or, when omitted, from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		password := loginPassword
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		ks, store, err := openKeystore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := ks.SavePassword(context.Background(), loginServer, loginUsername, password); err != nil {
			return fmt.Errorf("failed to save credential: %w", err)
		}

		fmt.Printf("Credential saved for %s @ %s\n", loginUsername, loginServer)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "media server URL (required)")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
	loginCmd.MarkFlagRequired("server")
	loginCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(loginCmd)
}

// openKeystore builds a credential store from configuration. The caller owns
// the returned storage handle.
func openKeystore(cfg *config.Config) (*keystore.Store, *storage.Store, error) {
	logger := logging.Initialize(cfg.LogLevel)

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	provider, err := keyring.NewProvider(cfg.Keystore.Provider, cfg.Keystore.KeyDir)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to initialize keyring provider: %w", err)
	}

	return keystore.New(store, provider, cfg.Keystore, logger), store, nil
}
