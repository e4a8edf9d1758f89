package llm

import (
	"context"
	"errors"
	"testing"
)

func TestCost(t *testing.T) {
	got := Cost(1_000_000, 1_000_000)
	want := 3.0 + 15.0
	if got != want {
		t.Errorf("Cost(1M, 1M) = %v, want %v", got, want)
	}
	if Cost(0, 0) != 0 {
		t.Errorf("Cost(0, 0) = %v, want 0", Cost(0, 0))
	}
}

func TestFakeClientReturnsConfiguredResponse(t *testing.T) {
	client := &FakeClient{Text: `{"times":[]}`, InputTokens: 120, OutputTokens: 30}
	text, in, out, err := client.Complete(context.Background(), "claude-sonnet-4-5", 1024, "extract the mass times")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != `{"times":[]}` || in != 120 || out != 30 {
		t.Errorf("Complete = (%q, %d, %d), want configured values", text, in, out)
	}
}

func TestFakeClientReturnsConfiguredError(t *testing.T) {
	sentinel := errors.New("rate limited")
	client := &FakeClient{Err: sentinel}
	if _, _, _, err := client.Complete(context.Background(), "claude-sonnet-4-5", 1024, "prompt"); !errors.Is(err, sentinel) {
		t.Errorf("Complete error = %v, want %v", err, sentinel)
	}
}

var _ Client = (*FakeClient)(nil)
var _ Client = (*AnthropicClient)(nil)
