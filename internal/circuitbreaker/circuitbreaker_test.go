package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		Name:                "test",
		MaxFailures:         3,
		RecoveryTimeout:     50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New(testConfig(), zap.NewNop())

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed while closed", i)
		}
		cb.RecordFailure()
	}

	if got := cb.GetState(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
	if cb.Allow() {
		t.Error("open breaker should reject requests")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := New(testConfig(), zap.NewNop())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("probe should be allowed after recovery timeout")
	}
	if got := cb.GetState(); got != StateHalfOpen {
		t.Errorf("state = %v, want half-open", got)
	}
	if cb.Allow() {
		t.Error("second request should be rejected while probe in flight")
	}

	cb.RecordSuccess()
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state after success = %v, want closed", got)
	}
	if !cb.Allow() {
		t.Error("closed breaker should allow requests")
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := New(testConfig(), zap.NewNop())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()

	if got := cb.GetState(); got != StateOpen {
		t.Errorf("state = %v, want open after failed probe", got)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig(), zap.NewNop())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state = %v, want closed, streak was broken", got)
	}
}

type stubSender struct {
	id    string
	err   error
	calls int
}

func (s *stubSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	s.calls++
	return s.id, s.err
}

func TestProtectedSenderFailsFastWhenOpen(t *testing.T) {
	stub := &stubSender{err: errors.New("provider down")}
	ps := NewProtectedSender(stub, testConfig(), zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := ps.SendMessage(context.Background(), "51999888777", "hola"); err == nil {
			t.Fatal("expected send error")
		}
	}

	_, err := ps.SendMessage(context.Background(), "51999888777", "hola")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if stub.calls != 3 {
		t.Errorf("underlying sender called %d times, want 3", stub.calls)
	}
}

func TestProtectedSenderPassesThrough(t *testing.T) {
	stub := &stubSender{id: "wamid.123"}
	ps := NewProtectedSender(stub, testConfig(), zap.NewNop())

	id, err := ps.SendMessage(context.Background(), "51999888777", "hola")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "wamid.123" {
		t.Errorf("message id = %q, want wamid.123", id)
	}
	if got := ps.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}
