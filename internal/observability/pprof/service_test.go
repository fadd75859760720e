package pprof

import (
	"context"
	"net/http"
	"runtime"
	"testing"
	"time"

	logx "heartbeat/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestApplyEnableDisable(t *testing.T) {
	srv := New(logx.Nop())
	t.Cleanup(func() { srv.Stop(context.Background()) })
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := Config{Addr: "127.0.0.1:0", BlockProfileRate: 1, MutexProfileFraction: 7}
	srv.Apply(ctx, cfg)
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("expected a bound address")
	}
	if err := waitForHTTP(ctx, "http://"+addr+"/debug/pprof/"); err != nil {
		t.Fatalf("pprof endpoint not reachable: %v", err)
	}
	if got := runtime.SetMutexProfileFraction(-1); got != cfg.MutexProfileFraction {
		t.Fatalf("mutex profile fraction = %d, want %d", got, cfg.MutexProfileFraction)
	}

	// Same config keeps the same listener.
	srv.Apply(ctx, cfg)
	if got := srv.Addr(); got != addr {
		t.Fatalf("listener moved from %s to %s", addr, got)
	}

	srv.Apply(ctx, Config{})
	if got := srv.Addr(); got != "" {
		t.Fatalf("expected pprof to stop, still at %s", got)
	}
}
