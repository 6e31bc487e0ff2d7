package classify

import (
	"context"
	"testing"

	"clipflow/internal/database"
)

func TestStatic(t *testing.T) {
	c := Static(database.SensitivityFlagged)

	for i := 0; i < 3; i++ {
		got, err := c.Classify(context.Background(), "vid-1")
		if err != nil {
			t.Fatalf("Classify() failed: %v", err)
		}
		if got != database.SensitivityFlagged {
			t.Errorf("Expected %s, got %s", database.SensitivityFlagged, got)
		}
	}
}

func TestRandomPolicyExtremes(t *testing.T) {
	t.Run("NeverFlags", func(t *testing.T) {
		p := NewRandomPolicy(0, 1)
		for i := 0; i < 100; i++ {
			got, err := p.Classify(context.Background(), "vid-1")
			if err != nil {
				t.Fatalf("Classify() failed: %v", err)
			}
			if got != database.SensitivitySafe {
				t.Fatalf("Expected safe at rate 0, got %s", got)
			}
		}
	})

	t.Run("AlwaysFlags", func(t *testing.T) {
		p := NewRandomPolicy(1, 1)
		for i := 0; i < 100; i++ {
			got, err := p.Classify(context.Background(), "vid-1")
			if err != nil {
				t.Fatalf("Classify() failed: %v", err)
			}
			if got != database.SensitivityFlagged {
				t.Fatalf("Expected flagged at rate 1, got %s", got)
			}
		}
	})
}

func TestRandomPolicyDeterministicSeed(t *testing.T) {
	first := NewRandomPolicy(0.5, 42)
	second := NewRandomPolicy(0.5, 42)

	for i := 0; i < 50; i++ {
		a, _ := first.Classify(context.Background(), "vid-1")
		b, _ := second.Classify(context.Background(), "vid-1")
		if a != b {
			t.Fatalf("Expected identical sequences for the same seed, diverged at %d", i)
		}
	}
}
