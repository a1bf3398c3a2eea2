package main

import (
	"testing"

	"github.com/oriys/aeronclient/internal/idlestrategy"
)

func TestParseStreamID(t *testing.T) {
	tests := []struct {
		in      string
		want    int32
		wantErr bool
	}{
		{"10", 10, false},
		{"0", 0, false},
		{"-1", -1, false},
		{"not-a-number", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseStreamID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseStreamID(%q) = %d, nil; want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseStreamID(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseStreamID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIdleStrategyForMapsEveryConfigName(t *testing.T) {
	tests := []struct {
		name string
		want interface{}
	}{
		{"noop", idlestrategy.NoOp{}},
		{"backoff", &idlestrategy.Backoff{}},
		{"sleeping", &idlestrategy.Sleeping{}},
		{"", &idlestrategy.Sleeping{}},
	}
	for _, tt := range tests {
		got := idleStrategyFor(tt.name)
		if got == nil {
			t.Fatalf("idleStrategyFor(%q) = nil", tt.name)
		}
		switch tt.want.(type) {
		case idlestrategy.NoOp:
			if _, ok := got.(idlestrategy.NoOp); !ok {
				t.Fatalf("idleStrategyFor(%q) = %T, want NoOp", tt.name, got)
			}
		case *idlestrategy.Backoff:
			if _, ok := got.(*idlestrategy.Backoff); !ok {
				t.Fatalf("idleStrategyFor(%q) = %T, want *Backoff", tt.name, got)
			}
		case *idlestrategy.Sleeping:
			if _, ok := got.(*idlestrategy.Sleeping); !ok {
				t.Fatalf("idleStrategyFor(%q) = %T, want *Sleeping", tt.name, got)
			}
		}
	}
}

func TestRootCommandBuildsEveryExpectedSubcommand(t *testing.T) {
	want := map[string]bool{
		"connect":  false,
		"pub":      false,
		"sub":      false,
		"counters": false,
		"serve":    false,
	}

	for _, cmd := range []interface{ Name() string }{
		connectCmd(), pubCmd(), subCmd(), countersCmd(), serveCmd(),
	} {
		name := cmd.Name()
		if _, ok := want[name]; !ok {
			t.Fatalf("unexpected subcommand %q", name)
		}
		want[name] = true
	}

	for name, seen := range want {
		if !seen {
			t.Fatalf("subcommand %q was not registered", name)
		}
	}
}
