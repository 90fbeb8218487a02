package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentvault/agentvault-go/pkg/credentials"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage credentials for remote agents",
}

var keysSetCmd = &cobra.Command{
	Use:   "set [service-id] [api-key]",
	Short: "Store an API key in the OS keyring for a service id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := credentials.New(keyFile, credentials.WithKeyring(credentials.NewOSKeyring()))
		if err := store.SetKeyInKeyring(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("stored key for", args[0])
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list [service-id...]",
	Short: "Report the resolution source for one or more service ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := credentials.New(keyFile, credentials.WithKeyring(credentials.NewOSKeyring()))
		for _, id := range args {
			if _, ok := store.GetKey(id); !ok {
				fmt.Printf("%s: not configured\n", id)
				continue
			}
			src, _ := store.KeySource(id)
			fmt.Printf("%s: configured (%s)\n", id, src)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd, keysListCmd)
}
