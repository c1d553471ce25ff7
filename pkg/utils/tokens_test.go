package utils

import (
	"strings"
	"testing"
)

func TestNewCounter(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{name: "gpt-4o", model: "gpt-4o"},
		{name: "gpt-3.5-turbo", model: "gpt-3.5-turbo"},
		{name: "claude falls back to cl100k_base", model: "claude-sonnet-4"},
		{name: "local model falls back to cl100k_base", model: "llama3.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := NewCounter(tt.model)
			if err != nil {
				t.Fatalf("NewCounter() error = %v", err)
			}
			if counter.Model() != tt.model {
				t.Errorf("Model() = %q, want %q", counter.Model(), tt.model)
			}
		})
	}
}

func TestCounterCount(t *testing.T) {
	counter, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{name: "empty", text: "", min: 0, max: 0},
		{name: "short sentence", text: "Hello, world!", min: 3, max: 5},
		{name: "longer text", text: "Perovskite tandem cells pushed past 33 percent efficiency in lab settings this year.", min: 12, max: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := counter.Count(tt.text)
			if got < tt.min || got > tt.max {
				t.Errorf("Count(%q) = %d, want between %d and %d", tt.text, got, tt.min, tt.max)
			}
		})
	}
}

func TestNilCounterEstimates(t *testing.T) {
	var counter *Counter
	text := "twelve chars"
	if got, want := counter.Count(text), Estimate(text); got != want {
		t.Errorf("nil Counter.Count() = %d, want estimate %d", got, want)
	}
	if counter.Model() != "" {
		t.Errorf("nil Counter.Model() = %q, want empty", counter.Model())
	}
}

func TestTrimToBudget(t *testing.T) {
	counter, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	text := strings.Repeat("solar panel deployment accelerated across the grid. ", 40)

	trimmed := counter.TrimToBudget(text, 50)
	if got := counter.Count(trimmed); got > 50 {
		t.Errorf("trimmed text counts %d tokens, want <= 50", got)
	}
	if !strings.HasPrefix(text, trimmed) {
		t.Error("TrimToBudget() must return a prefix of the input")
	}

	if got := counter.TrimToBudget("short", 100); got != "short" {
		t.Errorf("text within budget changed: %q", got)
	}
	if got := counter.TrimToBudget(text, 0); got != "" {
		t.Errorf("zero budget returned %q, want empty", got)
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "test", want: 1},
		{text: "testtest", want: 2},
		{text: "hellohello", want: 2},
	}

	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCounterCaching(t *testing.T) {
	c1, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}
	c2, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	text := "cache check"
	if c1.Count(text) != c2.Count(text) {
		t.Error("cached counters disagree")
	}
}
