package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"meshkv/internal/httpclient"
)

// replCmd is the interactive REPL, supplementing the dropped
// example_basic.py command loop: set/get/delete/list/status/quit against
// one node's admin HTTP surface.
func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive set/get/delete/list/status loop against one node",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpclient.New(serverAddr, timeout)
			fmt.Printf("connected to %s — commands: set <key> <value>, get <key>, delete <key>, list, status, quit\n", serverAddr)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return nil
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := runReplCommand(c, line); err != nil {
					if err == errQuit {
						return nil
					}
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
		},
	}
}

var errQuit = fmt.Errorf("quit")

func runReplCommand(c *httpclient.Client, line string) error {
	ctx := context.Background()
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case "quit", "exit":
		return errQuit

	case "set":
		if len(parts) < 3 {
			fmt.Println("usage: set <key> <value>")
			return nil
		}
		value := strings.Join(parts[2:], " ")
		if _, err := c.Put(ctx, parts[1], value); err != nil {
			return err
		}
		fmt.Printf("OK set %s\n", parts[1])
		return nil

	case "get":
		if len(parts) < 2 {
			fmt.Println("usage: get <key>")
			return nil
		}
		resp, err := c.Get(ctx, parts[1])
		if err == httpclient.ErrNotFound {
			fmt.Println("(nil)")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", resp.Value)
		return nil

	case "delete":
		if len(parts) < 2 {
			fmt.Println("usage: delete <key>")
			return nil
		}
		if err := c.Delete(ctx, parts[1]); err != nil {
			return err
		}
		fmt.Printf("OK delete %s\n", parts[1])
		return nil

	case "list":
		data, err := c.AllData(ctx)
		if err != nil {
			return err
		}
		for k, v := range data {
			fmt.Printf("%s = %v\n", k, v)
		}
		return nil

	case "status":
		status, err := c.Status(ctx)
		if err != nil {
			return err
		}
		prettyPrint(status)
		return nil

	default:
		fmt.Printf("unknown command %q\n", parts[0])
		return nil
	}
}
