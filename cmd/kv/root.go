package kv

import (
	"github.com/ValentinKolb/smap/cmd/util"
	"github.com/ValentinKolb/smap/lib/smap"
	"github.com/spf13/cobra"
)

var (
	kvMap *smap.Map[string, string]

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Work on a map served by an smap server",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(putIfAbsentCmd)
	KeyValueCommands.AddCommand(removeCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(hasValueCmd)
	KeyValueCommands.AddCommand(sizeCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(valuesCmd)
	KeyValueCommands.AddCommand(entriesCmd)
	KeyValueCommands.AddCommand(loadCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient creates the map client. It connects with the first command.
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	kvMap, err = smap.Dial(
		util.GetClientConfig(),
		util.GetMapID(),
		smap.String(),
		smap.String(),
		smap.WithTransport(t),
		smap.WithSerializer(s),
	)
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if kvMap == nil {
		return nil
	}
	return kvMap.Close()
}
