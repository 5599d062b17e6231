// cmd/meshctl is the CLI client entry-point, built with Cobra, matching
// the teacher's cmd/client/main.go structure.
//
// Usage:
//
//	meshctl put mykey "hello world"   --server http://localhost:9090
//	meshctl get mykey                 --server http://localhost:9090
//	meshctl delete mykey               --server http://localhost:9090
//	meshctl status                     --server http://localhost:9090
//	meshctl repl                       --server http://localhost:9090
//	meshctl loadgen --nodes 3 --drop-rate 0.3 --duration 20s
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meshkv/internal/httpclient"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "meshctl",
		Short: "CLI client for a meshkv node's admin HTTP surface",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:9090", "Node admin HTTP address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), statusCmd(), replCmd(), loadgenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpclient.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpclient.New(serverAddr, timeout)
			resp, err := c.Get(context.Background(), args[0])
			if err == httpclient.ErrNotFound {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpclient.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpclient.New(serverAddr, timeout)
			resp, err := c.Status(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
