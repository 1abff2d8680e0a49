package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/daybookhq/daybook/internal/config"
)

func TestNewHonorsConfiguredLevel(t *testing.T) {
	log, closer := New(config.Logging{Level: "error", Service: "daybook-test"})
	defer closer.Close()

	ctx := context.Background()
	if log.Enabled(ctx, slog.LevelInfo) {
		t.Error("info records should be suppressed at error level")
	}
	if !log.Enabled(ctx, slog.LevelError) {
		t.Error("error records should pass at error level")
	}
}

func TestNewSyncCloserIsSafe(t *testing.T) {
	log, closer := New(config.Logging{Level: "info", Service: "daybook-test"})
	if log == nil {
		t.Fatal("nil logger")
	}
	closer.Close()
}

func TestNewAsyncReturnsFlushingCloser(t *testing.T) {
	log, closer := New(config.Logging{Level: "debug", Service: "daybook-test", Async: true})
	if log == nil {
		t.Fatal("nil logger")
	}
	if _, ok := closer.(*AsyncHandler); !ok {
		t.Fatalf("closer = %T, want *AsyncHandler", closer)
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestContextCarriesRequestAndTenantIDs(t *testing.T) {
	ctx := context.Background()

	if RequestID(ctx) != "" || TenantID(ctx) != "" {
		t.Fatal("fresh context should carry no ids")
	}

	ctx = WithRequestID(ctx, "req_8c21")
	ctx = WithTenantID(ctx, "tn_bella")

	if got := RequestID(ctx); got != "req_8c21" {
		t.Errorf("RequestID = %q, want req_8c21", got)
	}
	if got := TenantID(ctx); got != "tn_bella" {
		t.Errorf("TenantID = %q, want tn_bella", got)
	}
}

func TestContextIDsAreIndependent(t *testing.T) {
	base := WithTenantID(context.Background(), "tn_iris")
	derived := WithRequestID(base, "req_0042")

	if got := TenantID(derived); got != "tn_iris" {
		t.Errorf("tenant id lost after adding request id: %q", got)
	}
	if RequestID(base) != "" {
		t.Error("request id leaked into the parent context")
	}
}
