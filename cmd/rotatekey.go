package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Force an encryption key rotation",
	Long: `Creates a fresh encryption key ahead of the scheduled rotation and
re-encrypts every stored credential under it. Stored credentials remain
readable throughout.`,
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

		if err := ks.RotateKey(context.Background()); err != nil {
			return fmt.Errorf("key rotation failed: %w", err)
		}

		fmt.Println("Encryption key rotated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rotateKeyCmd)
}
