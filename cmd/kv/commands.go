package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, found, err := kvMap.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", key, found, value)
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, replaced, err := kvMap.Put(args[0], args[1])
			if err != nil {
				return err
			}
			printPrevious("put", prev, replaced)
			return nil
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "put-if-absent [key] [value]",
		Short: "Sets the value for a key if the key does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, loaded, err := kvMap.PutIfAbsent(args[0], args[1])
			if err != nil {
				return err
			}
			if loaded {
				fmt.Printf("key exists, value=%s\n", existing)
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, removed, err := kvMap.Remove(args[0])
			if err != nil {
				return err
			}
			printPrevious("remove", prev, removed)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := kvMap.ContainsKey(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	hasValueCmd = &cobra.Command{
		Use:   "has-value [value]",
		Short: "Checks if any key holds a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := kvMap.ContainsValue(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("value=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Prints the number of entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := kvMap.Size()
			if err != nil {
				return err
			}
			fmt.Println(size)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Prints all keys (sorted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := kvMap.KeySet().Slice()
			if err != nil {
				return err
			}
			sort.Strings(keys)
			fmt.Println(strings.Join(keys, "\n"))
			return nil
		},
	}
	valuesCmd = &cobra.Command{
		Use:   "values",
		Short: "Prints all values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := kvMap.Values()
			for v := range values.All() {
				fmt.Println(v)
			}
			return values.Err()
		},
	}
	entriesCmd = &cobra.Command{
		Use:   "entries",
		Short: "Prints all entries as a JSON object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := kvMap.Snapshot()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
	loadCmd = &cobra.Command{
		Use:   "load [file]",
		Short: "Loads all entries of a JSON object (e.g. written by entries) with a single bulk transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var entries map[string]string
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("invalid file %s: %w", args[0], err)
			}
			if err := kvMap.PutAll(entries); err != nil {
				return err
			}
			fmt.Printf("loaded %d entries\n", len(entries))
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvMap.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the storage engine of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := kvMap.Info()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
)

func printPrevious(op string, prev string, found bool) {
	if found {
		fmt.Printf("%s successfully, previous value=%s\n", op, prev)
	} else {
		fmt.Printf("%s successfully\n", op)
	}
}
