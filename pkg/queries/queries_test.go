package queries

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kadirpekel/dossier/pkg/llms"
)

type stubLLM struct {
	text string
	err  error
}

func (s *stubLLM) ProviderName() string { return "stub" }
func (s *stubLLM) ModelName() string    { return "stub-model" }
func (s *stubLLM) Close() error         { return nil }

func (s *stubLLM) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llms.Response{Text: s.text}, nil
}

func TestGenerateParsesNumberedOutput(t *testing.T) {
	llm := &stubLLM{text: "1. quantum computing overview\n2) quantum computing hardware\n- Quantum Computing Overview\n3. \"quantum error correction\"\n"}
	g := New(llm)

	queries, err := g.Generate(context.Background(), "quantum computing", StrategyInitial, Context{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Case-insensitive dedup folds the repeated overview query.
	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d: %v", len(queries), queries)
	}
	if queries[0].Text != "quantum computing overview" {
		t.Errorf("unexpected first query: %q", queries[0].Text)
	}
	if queries[2].Text != "quantum error correction" {
		t.Errorf("quotes not stripped: %q", queries[2].Text)
	}
	for _, q := range queries {
		if q.Strategy != StrategyInitial {
			t.Errorf("query %q missing strategy tag", q.Text)
		}
	}
}

func TestGenerateFallsBackOnModelError(t *testing.T) {
	g := New(&stubLLM{err: fmt.Errorf("model down")})

	queries, err := g.Generate(context.Background(), "solid state batteries", StrategyInitial, Context{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(queries) < 3 || len(queries) > 6 {
		t.Fatalf("initial strategy must yield 3-6 queries, got %d", len(queries))
	}
	for _, q := range queries {
		if !strings.Contains(strings.ToLower(q.Text), "solid state batteries") {
			t.Errorf("template query %q does not mention the topic", q.Text)
		}
	}
}

func TestGenerateWithoutModel(t *testing.T) {
	g := New(nil)

	queries, err := g.Generate(context.Background(), "carbon capture", StrategyIterative, Context{
		MissingAspects: []string{"policy landscape", "cost curves"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected one query per missing aspect, got %d", len(queries))
	}
	if queries[0].Text != "carbon capture policy landscape" {
		t.Errorf("unexpected gap query: %q", queries[0].Text)
	}
}

func TestGenerateTargetedUsesSectionScope(t *testing.T) {
	g := New(nil)

	queries, err := g.Generate(context.Background(), "LLM inference", StrategyTargeted, Context{
		SectionTitle: "Hardware acceleration",
		KeyPoints:    []string{"GPU economics", "custom silicon"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(queries) < 2 || len(queries) > 4 {
		t.Fatalf("targeted strategy must yield 2-4 queries, got %d", len(queries))
	}
	if queries[0].Text != "LLM inference Hardware acceleration" {
		t.Errorf("unexpected section query: %q", queries[0].Text)
	}
}

func TestGenerateEmptyTopic(t *testing.T) {
	g := New(nil)
	if _, err := g.Generate(context.Background(), "   ", StrategyInitial, Context{}); err == nil {
		t.Fatal("expected an error for an empty topic")
	}
}

func TestGenerateClampsToStrategyMaximum(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("%d. topic angle %d", i+1, i))
	}
	g := New(&stubLLM{text: strings.Join(lines, "\n")})

	queries, err := g.Generate(context.Background(), "topic", StrategyIterative, Context{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(queries) != 4 {
		t.Fatalf("iterative strategy caps at 4 queries, got %d", len(queries))
	}
}

func TestTexts(t *testing.T) {
	qs := []Query{{Text: "a"}, {Text: "b"}}
	got := Texts(qs)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected Texts result: %v", got)
	}
}

func TestGenerateBiasesTowardCompanies(t *testing.T) {
	g := New(nil)
	queries, err := g.Generate(context.Background(), "solid state batteries", StrategyInitial, Context{
		Companies: []string{"QuantumScape"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	var found bool
	for _, q := range queries {
		if strings.Contains(q.Text, "QuantumScape") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a company-scoped query, got %v", Texts(queries))
	}
	if len(queries) > 6 {
		t.Errorf("initial strategy caps at 6 queries, got %d", len(queries))
	}
}
