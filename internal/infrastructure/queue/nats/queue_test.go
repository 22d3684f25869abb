package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

func TestIngestEventRoundTrip(t *testing.T) {
	key := domain.FilingKey{Ticker: "ACME", FiscalYear: 2023}
	raw, err := encodeEvent(key)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	if string(raw) != `{"ticker":"ACME","fiscal_year":2023}` {
		t.Fatalf("unexpected wire payload %s", raw)
	}
	got, err := decodeEvent(raw)
	if err != nil || got != key {
		t.Fatalf("decodeEvent() = %v, %v", got, err)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"doc-123", `{"fiscal_year":2023}`} {
		if _, err := decodeEvent([]byte(raw)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("payload %q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestClassifyNATSError(t *testing.T) {
	if !classifyNATSError(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed)).Retryable {
		t.Fatalf("expected closed connection to be retryable")
	}
	if classifyNATSError(context.Canceled).Retryable {
		t.Fatalf("expected cancellation not retryable")
	}
	if classifyNATSError(nats.ErrBadSubject).Retryable {
		t.Fatalf("expected bad subject not retryable")
	}
	err := resilience.WrapTemporary("nats publish", nats.ErrNoServers, classifyNATSError)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
}
