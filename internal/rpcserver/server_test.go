package rpcserver_test

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"rpcframe/internal/registry"
	"rpcframe/internal/rpcctx"
	"rpcframe/internal/rpcserver"
	"rpcframe/internal/schema"
	"rpcframe/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T, configure func(cfg *rpcserver.Config), register func(b *registry.Builder)) *rpcserver.Server {
	t.Helper()
	cfg := rpcserver.DefaultConfig("127.0.0.1:0")
	cfg.Logger = discardLogger()
	cfg.ReadBudget = time.Second
	cfg.ReapInterval = 20 * time.Millisecond
	if configure != nil {
		configure(&cfg)
	}

	b := registry.NewBuilder()
	if register != nil {
		register(b)
	}

	srv := rpcserver.New(cfg, b)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(timeoutCtx(t, 5*time.Second))
	})
	return srv
}

func timeoutCtx(t *testing.T, d time.Duration) (ctx timeoutContext) {
	return timeoutContext{t: t, d: d}
}

// timeoutContext is a minimal context.Context good enough for Shutdown's
// deadline comparison in these tests without importing "context" into every
// call site.
type timeoutContext struct {
	t *testing.T
	d time.Duration
}

func (c timeoutContext) Deadline() (time.Time, bool) { return time.Now().Add(c.d), true }
func (c timeoutContext) Done() <-chan struct{}        { return nil }
func (c timeoutContext) Err() error                   { return nil }
func (c timeoutContext) Value(key interface{}) interface{} { return nil }

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return conn
}

func readFrame(t *testing.T, conn net.Conn, deadline time.Time) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(deadline)
	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	_, length, err := wire.DecodeHeader(header)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

func sendRaw(t *testing.T, conn net.Conn, compressed byte, length uint32, body []byte) {
	t.Helper()
	header := make([]byte, wire.HeaderSize)
	header[0] = compressed
	binary.BigEndian.PutUint32(header[1:], length)
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			t.Fatalf("write body: %v", err)
		}
	}
}

func TestServerEchoRoundTrip(t *testing.T) {
	in := schema.Object([]string{"message"}, map[string]*schema.Schema{"message": schema.String()}, false)
	srv := startTestServer(t, nil, func(b *registry.Builder) {
		_ = b.Register("echo", func(rc *rpcctx.Context, params interface{}) (interface{}, error) {
			return params, nil
		}, in, nil)
	})

	conn := dial(t, srv.Addr())
	defer conn.Close()

	reqBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"message":"hi"}}`)
	frame, err := wire.Encode(false, reqBody)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	respBody := readFrame(t, conn, time.Now().Add(2*time.Second))
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body=%s)", err, respBody)
	}
	result := resp["result"].(map[string]interface{})
	if result["message"] != "hi" {
		t.Fatalf("message = %v, want hi", result["message"])
	}
}

func TestServerRejectsCompressedFrame(t *testing.T) {
	srv := startTestServer(t, nil, nil)
	conn := dial(t, srv.Addr())
	defer conn.Close()

	sendRaw(t, conn, 1, 2, []byte("{}"))

	respBody := readFrame(t, conn, time.Now().Add(2*time.Second))
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	errObj := resp["error"].(map[string]interface{})
	if errObj["code"] != float64(12) {
		t.Fatalf("code = %v, want 12", errObj["code"])
	}
}

func TestServerRejectsFrameOverConfiguredMax(t *testing.T) {
	srv := startTestServer(t, func(cfg *rpcserver.Config) {
		cfg.MaxFrameSize = 16
	}, nil)
	conn := dial(t, srv.Addr())
	defer conn.Close()

	sendRaw(t, conn, 0, 1000, nil)

	respBody := readFrame(t, conn, time.Now().Add(2*time.Second))
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	errObj := resp["error"].(map[string]interface{})
	if errObj["code"] != float64(3) {
		t.Fatalf("code = %v, want 3", errObj["code"])
	}
}

func TestServerMethodNotFound(t *testing.T) {
	srv := startTestServer(t, nil, nil)
	conn := dial(t, srv.Addr())
	defer conn.Close()

	frame, _ := wire.Encode(false, []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	respBody := readFrame(t, conn, time.Now().Add(2*time.Second))
	var resp map[string]interface{}
	_ = json.Unmarshal(respBody, &resp)
	errObj := resp["error"].(map[string]interface{})
	if errObj["code"] != float64(3) {
		t.Fatalf("code = %v, want 3", errObj["code"])
	}
}

func TestShutdownAbandonsIdleReader(t *testing.T) {
	cfg := rpcserver.DefaultConfig("127.0.0.1:0")
	cfg.Logger = discardLogger()
	cfg.ReadBudget = 10 * time.Second
	cfg.ShutdownBudget = 300 * time.Millisecond
	cfg.ReapInterval = 10 * time.Millisecond

	b := registry.NewBuilder()
	srv := rpcserver.New(cfg, b)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn := dial(t, srv.Addr())
	defer conn.Close()
	// Deliberately never send anything: the worker is parked in the header
	// read, waiting on a ReadBudget that is far longer than ShutdownBudget.

	start := time.Now()
	if err := srv.Shutdown(timeoutCtx(t, 2*time.Second)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Shutdown took %s, want well under its 300ms budget's neighborhood", elapsed)
	}
}

func TestServerHandlesConcurrentConnections(t *testing.T) {
	srv := startTestServer(t, nil, func(b *registry.Builder) {
		_ = b.Register("health.check", func(rc *rpcctx.Context, params interface{}) (interface{}, error) {
			return map[string]interface{}{"status": "ok"}, nil
		}, nil, nil)
	})

	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			conn := dial(t, srv.Addr())
			defer conn.Close()
			frame, _ := wire.Encode(false, []byte(`{"jsonrpc":"2.0","id":1,"method":"health.check"}`))
			if _, err := conn.Write(frame); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			readFrame(t, conn, time.Now().Add(2*time.Second))
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}
