package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/smap/cmd/kv"
	"github.com/ValentinKolb/smap/cmd/serve"
	"github.com/ValentinKolb/smap/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "smap",
		Short: "shared maps served over the network",
		Long: fmt.Sprintf(`smap (v%s)

A map server with stateless clients written in Go. Clients hold no data,
every operation is a round trip to the server, so any number of processes
share the same maps. Maps are kept in memory or replicated with RAFT.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of smap",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("smap v%s\n", Version)
		},
	}
)

func init() {
	// .env files and SMAP_* environment variables
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob), must match the server"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
