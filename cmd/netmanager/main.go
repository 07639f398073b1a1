// The netmanager command runs a headless networked session as a dedicated
// server, a client, or a host (server plus local client).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	ConfigFlag  string
	AddressFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "netmanager",
		Short: "Headless session manager for networked scenes",
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", "./", "Path to the directory containing config.yaml")

	clientCmd.Flags().StringVarP(&AddressFlag, "address", "a", "", "Server address to connect to (overrides network_address)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(hostCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a dedicated server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(modeServer)
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a remote server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(modeClient)
	},
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run a server with an in-process client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(modeHost)
	},
}
