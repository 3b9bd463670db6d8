// Command rpcclient is a minimal demo client for the rpcframe engine: dial,
// send one JSON-RPC request frame, read one response frame, print the
// result. It exists to exercise the wire protocol end to end, not as a
// general-purpose client library.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
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
	var addr string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "rpcclient",
		Short: "Send one JSON-RPC request to an rpcframe server",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:7443", "server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and round-trip timeout")

	callCmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a single procedure and print the response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			var params json.RawMessage
			if len(args) == 2 {
				params = json.RawMessage(args[1])
			}
			return call(addr, timeout, method, params)
		},
	}

	procsCmd := &cobra.Command{
		Use:   "procedures",
		Short: "List the procedures registered on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(addr, timeout, "rpc.procedures", nil)
		},
	}

	root.AddCommand(callCmd, procsCmd)
	return root
}

func call(addr string, timeout time.Duration, method string, params json.RawMessage) error {
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if len(params) > 0 {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	frame, err := wire.Encode(false, body)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	header := make([]byte, wire.HeaderSize)
	deadline := time.Now().Add(timeout)
	if _, err := wire.ReadExact(conn, header, deadline, nil); err != nil {
		return fmt.Errorf("read response header: %w", err)
	}
	_, length, err := wire.DecodeHeader(header)
	if err != nil {
		return fmt.Errorf("decode response header: %w", err)
	}
	respBody := make([]byte, length)
	if _, err := wire.ReadExact(conn, respBody, deadline, nil); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(respBody, &pretty); err != nil {
		fmt.Println(string(respBody))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
