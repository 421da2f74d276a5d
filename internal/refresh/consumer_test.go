package refresh

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
)

type countTrigger struct{ n int }

func (c *countTrigger) Trigger() { c.n++ }

func msg(body string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "catalog-changes", Value: []byte(body)}
}

func TestProcessOne(t *testing.T) {
	target := &countTrigger{}
	c := New(Config{Topic: "catalog-changes"},
		slog.New(slog.NewTextHandler(io.Discard, nil)), target)
	ctx := context.Background()

	if err := c.ProcessOne(ctx, msg(`{"action":"refresh","layers":["public.parcels"]}`)); err != nil {
		t.Fatalf("refresh event: %v", err)
	}
	if target.n != 1 {
		t.Fatalf("triggers = %d, want 1", target.n)
	}

	// Unknown action and garbage both drop without error.
	if err := c.ProcessOne(ctx, msg(`{"action":"vacuum"}`)); err != nil {
		t.Fatalf("unknown action: %v", err)
	}
	if err := c.ProcessOne(ctx, msg(`{not json`)); err != nil {
		t.Fatalf("malformed body: %v", err)
	}
	if target.n != 1 {
		t.Fatalf("triggers = %d after skips, want 1", target.n)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), &countTrigger{})
	if c.cfg.SessionTimeout == 0 || c.cfg.Heartbeat == 0 || c.cfg.RebalanceTimeout == 0 {
		t.Fatalf("timeouts not defaulted: %+v", c.cfg)
	}
}
