package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit breaker should be open after max failures")
	}

	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("state should be half-open")
	}

	client.recordFailure()
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset the count")
	}
}

func TestClient_Publish_ShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	ev := NewTransactionsImported(1, 2, 3)

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	err := client.Publish(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Publish(ctx, ev); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEventFromJSON(t *testing.T) {
	ev := NewTransactionDeleted(1, 2, 99)
	body, err := ev.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := EventFromJSON(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventTransactionDeleted || got.TransactionID != 99 || got.AccountID != 2 {
		t.Fatalf("unexpected event %+v", got)
	}

	saved, _ := NewTransactionSaved(1, 2, 7).ToJSON()
	if got, err := EventFromJSON(saved); err != nil || got.Type != EventTransactionSaved {
		t.Fatalf("saved event: %+v (%v)", got, err)
	}

	if _, err := EventFromJSON([]byte(`{"type":"expense.synced"}`)); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if _, err := EventFromJSON([]byte(`{"user_id":"x"}`)); err == nil {
		t.Fatal("expected error for malformed event")
	}
}
