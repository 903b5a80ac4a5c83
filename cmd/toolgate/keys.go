package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"toolgate/internal/secrets"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the secret store encryption key",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new secret store key",
	Long: `Prints a fresh 32-byte key as hex. Export it as TOOLGATE_SECRETS_KEY
before starting the process; rotating it invalidates previously sealed
credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateRandomKey()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(key[:]))
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyGenerateCmd)
}
