// Command rpcbench drives concurrent load against an rpcframe server over
// the length-prefixed TCP protocol and reports latency percentiles.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"rpcframe/internal/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr        string
		method      string
		params      string
		concurrency int
		duration    time.Duration
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rpcbench",
		Short: "Benchmark an rpcframe server with concurrent connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bench(addr, method, params, concurrency, duration, timeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7443", "server address")
	cmd.Flags().StringVar(&method, "method", "health.check", "procedure to call")
	cmd.Flags().StringVar(&params, "params", "", "raw JSON params object, omitted if empty")
	cmd.Flags().IntVar(&concurrency, "concurrency", 16, "number of concurrent callers")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to generate load")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-call dial+roundtrip timeout")
	return cmd
}

func bench(addr, method, params string, concurrency int, duration, timeout time.Duration) error {
	req, err := buildRequest(method, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "rpcbench: addr=%s method=%s concurrency=%d duration=%s\n",
		addr, method, concurrency, duration)

	latencies := make(chan time.Duration, 4096)
	errs := make(chan error, 4096)
	stop := time.Now().Add(duration)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(stop) {
				d, err := callOnce(addr, timeout, req)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				select {
				case latencies <- d:
				default:
				}
			}
		}()
	}
	wg.Wait()
	close(latencies)
	close(errs)

	samples := make([]time.Duration, 0, len(latencies))
	for d := range latencies {
		samples = append(samples, d)
	}
	errCount := len(errs)

	if len(samples) == 0 {
		return fmt.Errorf("rpcbench: no successful calls (errors=%d)", errCount)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	summary := map[string]interface{}{
		"calls_ok":       len(samples),
		"calls_error":    errCount,
		"throughput_qps": float64(len(samples)) / duration.Seconds(),
		"min_ns":         samples[0].Nanoseconds(),
		"p50_ns":         percentile(samples, 0.50).Nanoseconds(),
		"p95_ns":         percentile(samples, 0.95).Nanoseconds(),
		"p99_ns":         percentile(samples, 0.99).Nanoseconds(),
		"max_ns":         samples[len(samples)-1].Nanoseconds(),
	}

	fmt.Fprintf(os.Stderr, "ok=%d error=%d throughput=%.1f/s p50=%s p95=%s p99=%s\n",
		len(samples), errCount, summary["throughput_qps"],
		percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99))

	return json.NewEncoder(os.Stdout).Encode(summary)
}

func buildRequest(method, rawParams string) ([]byte, error) {
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if rawParams != "" {
		req["params"] = json.RawMessage(rawParams)
	}
	return json.Marshal(req)
}

func callOnce(addr string, timeout time.Duration, body []byte) (time.Duration, error) {
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	frame, err := wire.Encode(false, body)
	if err != nil {
		return 0, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := conn.Write(frame); err != nil {
		return 0, err
	}

	header := make([]byte, wire.HeaderSize)
	deadline := time.Now().Add(timeout)
	if _, err := wire.ReadExact(conn, header, deadline, nil); err != nil {
		return 0, err
	}
	_, length, err := wire.DecodeHeader(header)
	if err != nil {
		return 0, err
	}
	respBody := make([]byte, length)
	if _, err := wire.ReadExact(conn, respBody, deadline, nil); err != nil {
		return 0, err
	}

	return time.Since(start), nil
}

func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
