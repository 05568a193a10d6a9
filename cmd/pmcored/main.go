// Command pmcored runs the project-management core daemon: an embedded
// sqlite store behind a persistent binary RPC protocol.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK = iota
	exitConfigError
	exitDatabaseError
	exitBindError
	exitRuntimeError
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(exitRuntimeError)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pmcored",
		Short: "Project-management core daemon",
	}
	root.AddCommand(serveCmd())
	return root
}

var (
	flagBindAddress string
	flagPort        int
	flagDBPath      string
	flagConfigPath  string
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon and block until shutdown",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&flagBindAddress, "bind-address", "", "override server.bind_address")
	cmd.Flags().IntVar(&flagPort, "port", 0, "override server.port")
	cmd.Flags().StringVar(&flagDBPath, "db", "", "override database.path")
	cmd.Flags().StringVar(&flagConfigPath, "config", "", "path to config.toml")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	code, err := serve(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stdout, "server failed: %v\n", err)
		os.Exit(code)
	}
	return nil
}
