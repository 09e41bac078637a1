package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pior/cachewire"
	"golang.org/x/sync/errgroup"
)

type OperationType string

const (
	GetHit  OperationType = "get-hit"
	PutGet  OperationType = "put-get"
	GetMiss OperationType = "get-miss"
	Destroy OperationType = "destroy"
	All     OperationType = "all"
)

const region = "bench"

var errMismatch = errors.New("value mismatch")

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// counters are shared by the workers of one run.
type counters struct {
	totalOps, successes, failures, latency atomic.Int64
	mismatch                               atomic.Bool
}

// op runs fn once and accounts for its latency and outcome.
func (c *counters) op(fn func() error) error {
	start := time.Now()
	err := fn()
	c.totalOps.Add(1)
	c.latency.Add(int64(time.Since(start)))

	switch {
	case errors.Is(err, errMismatch):
		c.failures.Add(1)
		c.mismatch.Store(true)
	case err != nil:
		c.failures.Add(1)
	default:
		c.successes.Add(1)
	}
	return err
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: get-hit, put-get, get-miss, destroy, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		servers     = flag.String("servers", "localhost:40404", "Comma-separated list of cachewire servers")
		valueSize   = flag.Int("value-size", 128, "Size of the stored values in bytes")
		poolSize    = flag.Int("pool-size", 16, "Maximum connections per server")
	)
	flag.Parse()

	fmt.Printf("Cachewire Benchmark Tool\n")
	fmt.Printf("========================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	fmt.Println()

	client, err := cachewire.NewClient(cachewire.NewStaticServers(strings.Split(*servers, ",")...), cachewire.Config{
		MaxSize:             int32(*poolSize),
		HealthCheckInterval: 10 * time.Second,
		NewCircuitBreaker:   cachewire.NewCircuitBreakerConfig(1, 10*time.Second, 5*time.Second),
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	fmt.Print("Testing connection...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Ping(ctx)
	cancel()
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure cachewire-server is running on %s\n", *servers)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	b := &bench{client: client, duration: *duration, concurrency: *concurrency, value: bytes.Repeat([]byte("x"), *valueSize)}

	if OperationType(*operation) == All {
		for _, op := range []OperationType{GetHit, PutGet, GetMiss, Destroy} {
			fmt.Printf("\n--- Running %s benchmark ---\n", op)
			printResult(b.run(op))
			time.Sleep(500 * time.Millisecond)
		}
	} else {
		printResult(b.run(OperationType(*operation)))
	}

	printPoolStats(client)
}

type bench struct {
	client      *cachewire.Client
	duration    time.Duration
	concurrency int
	value       []byte
}

func (b *bench) run(operation OperationType) *BenchmarkResult {
	ctx := context.Background()

	var work func(ctx context.Context, c *counters, worker, n int) error
	switch operation {
	case GetHit:
		if err := b.client.Put(ctx, region, "hit-key", b.value); err != nil {
			return &BenchmarkResult{Operation: operation, ErrorMessage: fmt.Sprintf("Failed to put initial value: %v", err)}
		}
		work = b.getHit
	case PutGet:
		work = b.putGet
	case GetMiss:
		work = b.getMiss
	case Destroy:
		work = b.putDestroy
	default:
		return &BenchmarkResult{Operation: operation, ErrorMessage: fmt.Sprintf("Unknown operation: %s", operation)}
	}

	fmt.Printf("Starting %s benchmark with %d workers for %v...\n", operation, b.concurrency, b.duration)

	var c counters
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for worker := range b.concurrency {
		g.Go(func() error {
			for n := 0; time.Since(start) < b.duration; n++ {
				// failures are counted, only a cancelled context stops a worker
				_ = work(gctx, &c, worker, n)
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}
	err := g.Wait()

	result := &BenchmarkResult{
		Operation:   operation,
		Duration:    time.Since(start),
		TotalOps:    c.totalOps.Load(),
		Successes:   c.successes.Load(),
		Failures:    c.failures.Load(),
		Correctness: !c.mismatch.Load(),
	}
	if !result.Correctness {
		result.ErrorMessage = "Value mismatch"
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(c.latency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}
	return result
}

func (b *bench) getHit(ctx context.Context, c *counters, _, _ int) error {
	return c.op(func() error {
		value, found, err := b.client.Get(ctx, region, "hit-key")
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(value, b.value) {
			return errMismatch
		}
		return nil
	})
}

func (b *bench) putGet(ctx context.Context, c *counters, worker, n int) error {
	key := fmt.Sprintf("dynamic-key-%d-%d", worker, n)
	value := fmt.Appendf(nil, "dynamic-value-%d-%d", worker, n)

	if err := c.op(func() error { return b.client.Put(ctx, region, key, value) }); err != nil {
		return err
	}
	return c.op(func() error {
		got, found, err := b.client.Get(ctx, region, key)
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(got, value) {
			return errMismatch
		}
		return nil
	})
}

func (b *bench) getMiss(ctx context.Context, c *counters, worker, n int) error {
	key := fmt.Sprintf("nonexistent-key-%d-%d", worker, n)
	return c.op(func() error {
		_, found, err := b.client.Get(ctx, region, key)
		if err != nil {
			return err
		}
		if found {
			return errMismatch
		}
		return nil
	})
}

func (b *bench) putDestroy(ctx context.Context, c *counters, worker, n int) error {
	key := fmt.Sprintf("destroy-key-%d-%d", worker, n)

	if err := c.op(func() error { return b.client.Put(ctx, region, key, b.value) }); err != nil {
		return err
	}
	return c.op(func() error { return b.client.Destroy(ctx, region, key) })
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}

func printPoolStats(client *cachewire.Client) {
	stats := client.Stats()
	fmt.Printf("Requests: %d  Retries: %d  Exceptions: %d  Errors: %d\n",
		stats.Requests, stats.Retries, stats.Exceptions, stats.Errors)

	for _, sp := range client.AllPoolStats() {
		fmt.Printf("Server %s: total=%d idle=%d created=%d destroyed=%d breaker=%s\n",
			sp.Addr, sp.PoolStats.TotalConns, sp.PoolStats.IdleConns,
			sp.PoolStats.CreatedConns, sp.PoolStats.DestroyedConns, sp.CircuitBreakerState)
	}
}
