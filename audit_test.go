package opaquegate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errSentinelForTest = errors.New("curve rejected the client point")

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func waitForEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case event := <-sink.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditCarriesSanitizedDetail(t *testing.T) {
	sink := NewChannelSink(8)
	fp := &fakePAKE{failRegister: errSentinelForTest}
	engine, _ := buildTestEngine(t, testConfig(), fp, sink)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	_, err := engine.RegisterStart(ctx, "alice@example.com", []byte("request"))
	if err == nil {
		t.Fatal("expected failure")
	}

	event := waitForEvent(t, sink)
	if event.EventType != "register_start" || event.Success {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Identity != "alice@example.com" {
		t.Fatalf("unexpected identity: %q", event.Identity)
	}
	if event.IP != "203.0.113.7" {
		t.Fatalf("unexpected IP: %q", event.IP)
	}
	// The caller saw only ErrEngineRejected; the audit trail keeps the
	// underlying engine detail.
	if event.Error != errSentinelForTest.Error() {
		t.Fatalf("audit must carry engine detail, got %q", event.Error)
	}
	if event.Metadata["reason"] != "engine_rejected" {
		t.Fatalf("unexpected metadata: %+v", event.Metadata)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	engine, _ := buildTestEngine(t, cfg, &fakePAKE{}, sink)
	registerIdentity(t, engine, "alice@example.com")
	time.Sleep(30 * time.Millisecond)

	if sink.count.Load() != 0 {
		t.Fatalf("expected no sink calls when audit disabled, got %d", sink.count.Load())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: "login_start", Identity: "alice@example.com", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: "login_finish", Success: false})

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestAuditCloseDrains(t *testing.T) {
	sink := NewChannelSink(16)
	engine, _ := buildTestEngine(t, testConfig(), &fakePAKE{}, sink)
	registerIdentity(t, engine, "alice@example.com")

	engine.Close()

	// Both phase events must have reached the sink by the time Close
	// returns.
	got := 0
	for {
		select {
		case <-sink.Events():
			got++
			if got == 2 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("expected 2 drained events, got %d", got)
		}
	}
}
