package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	logoutServer   string
	logoutUsername string
	logoutAll      bool
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored media server credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ks, store, err := openKeystore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if logoutAll {
			if err := ks.ClearAll(context.Background()); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}
			fmt.Println("All credentials cleared")
			return nil
		}

		if logoutServer == "" || logoutUsername == "" {
			return fmt.Errorf("--server and --username are required unless --all is set")
		}

		if err := ks.ClearPassword(context.Background(), logoutServer, logoutUsername); err != nil {
			return fmt.Errorf("failed to clear credential: %w", err)
		}

		fmt.Printf("Credential cleared for %s @ %s\n", logoutUsername, logoutServer)
		return nil
	},
}

func init() {
	logoutCmd.Flags().StringVar(&logoutServer, "server", "", "media server URL")
	logoutCmd.Flags().StringVar(&logoutUsername, "username", "", "username")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "clear every stored credential")

	rootCmd.AddCommand(logoutCmd)
}
