package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/weiihann/sirun/statsd"
)

func TestParseGauges(t *testing.T) {
	m, err := parseGauges([]string{"udp.data=50", "latency=1.5", "udp.data=60"})
	if err != nil {
		t.Fatalf("parseGauges: %v", err)
	}

	if m.Len() != 2 {
		t.Fatalf("keys = %v, want 2", m.Keys())
	}

	v, _ := m.Get("udp.data")
	if n, _ := v.AsNumber(); n != 60 {
		t.Errorf("udp.data = %v, want 60", n)
	}
}

func TestParseGaugesErrors(t *testing.T) {
	for _, arg := range []string{"novalue", "=5", "a=abc", "a:b=1", "a|g=1"} {
		if _, err := parseGauges([]string{arg}); err == nil {
			t.Errorf("%q: expected error", arg)
		}
	}
}

func TestSend(t *testing.T) {
	l, err := statsd.Listen(0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	l.Start()
	<-l.Ready()

	m, err := parseGauges([]string{"rows=42"})
	if err != nil {
		t.Fatalf("parseGauges: %v", err)
	}

	if err := send(strconv.Itoa(l.Port()), m); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	v, ok := l.Drain().Get("rows")
	if n, _ := v.AsNumber(); !ok || n != 42 {
		t.Errorf("rows = %v (present %v), want 42", n, ok)
	}
}
