package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pior/cachewire"
)

func main() {
	var (
		servers = flag.String("servers", "localhost:40404", "Comma-separated list of cachewire servers")
		region  = flag.String("region", "default", "Region used by key commands")
		retries = flag.Int("retries", 1, "Number of other servers a failed request is resent to")
	)
	flag.Parse()

	fmt.Println("Cachewire CLI Tool")
	fmt.Println("==================")
	fmt.Println("Commands: put <key> <value>, get <key>, destroy <key>, contains <key>, size, region <name>, stats, ping, quit")
	fmt.Println()

	client, err := cachewire.NewClient(cachewire.NewStaticServers(strings.Split(*servers, ",")...), cachewire.Config{
		RetryAttempts: *retries,
	})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	current := *region
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		switch command {
		case "put", "set":
			if len(parts) != 3 {
				fmt.Println("Usage: put <key> <value>")
				break
			}
			timed(func() error { return client.Put(ctx, current, parts[1], []byte(parts[2])) }, "Stored successfully")

		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				break
			}
			handleGet(ctx, client, current, parts[1])

		case "destroy", "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: destroy <key>")
				break
			}
			timed(func() error { return client.Destroy(ctx, current, parts[1]) }, "Destroy successful")

		case "contains":
			if len(parts) != 2 {
				fmt.Println("Usage: contains <key>")
				break
			}
			var found bool
			timed(func() (err error) {
				found, err = client.ContainsKey(ctx, current, parts[1])
				return err
			}, "Lookup done")
			fmt.Printf("Contains %s: %v\n", parts[1], found)

		case "size":
			var n int
			timed(func() (err error) {
				n, err = client.Size(ctx, current)
				return err
			}, "Size done")
			fmt.Printf("Region %s holds %d entries\n", current, n)

		case "region":
			if len(parts) != 2 {
				fmt.Printf("Current region: %s\n", current)
				break
			}
			current = parts[1]

		case "stats":
			handleStats(client)

		case "ping":
			timed(func() error { return client.Ping(ctx) }, "Ping successful")

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  put <key> <value>   - Store a value in the current region")
			fmt.Println("  get <key>           - Get a value by key")
			fmt.Println("  destroy <key>       - Remove a key")
			fmt.Println("  contains <key>      - Check whether a key exists")
			fmt.Println("  size                - Count the entries of the current region")
			fmt.Println("  region [name]       - Show or switch the current region")
			fmt.Println("  stats               - Show client and pool statistics")
			fmt.Println("  ping                - Ping all servers")
			fmt.Println("  quit                - Exit the CLI")

		case "quit", "exit":
			cancel()
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
		cancel()
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func timed(fn func() error, success string) {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("%s (took %v)\n", success, duration)
}

func handleGet(ctx context.Context, client *cachewire.Client, region, key string) {
	start := time.Now()
	value, found, err := client.Get(ctx, region, key)
	duration := time.Since(start)

	switch {
	case err != nil:
		fmt.Printf("Error: %v (took %v)\n", err, duration)
	case !found:
		fmt.Printf("Key not found (took %v)\n", duration)
	default:
		fmt.Printf("Value: %s (took %v)\n", value, duration)
	}
}

func handleStats(client *cachewire.Client) {
	stats := client.Stats()
	fmt.Printf("Requests: %d  Retries: %d  Exceptions: %d  Errors: %d\n",
		stats.Requests, stats.Retries, stats.Exceptions, stats.Errors)

	for _, s := range client.AllPoolStats() {
		fmt.Printf("Server %s:\n", s.Addr)
		fmt.Printf("  Total Connections: %d\n", s.PoolStats.TotalConns)
		fmt.Printf("  Active Connections: %d\n", s.PoolStats.ActiveConns)
		fmt.Printf("  Idle Connections: %d\n", s.PoolStats.IdleConns)
		fmt.Printf("  Circuit Breaker: %s\n", s.CircuitBreakerState)
	}
}
