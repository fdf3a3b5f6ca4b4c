package narrate

import (
	"errors"
	"strings"
	"testing"

	"sentinel/internal/model"
)

func TestNewSelectsVendor(t *testing.T) {
	n, err := New("", "", "")
	if err != nil || n != nil {
		t.Errorf("empty vendor: narrator = %v, err = %v", n, err)
	}

	n, err = New("anthropic", "", "test-key")
	if err != nil || n == nil {
		t.Errorf("anthropic: narrator = %v, err = %v", n, err)
	}

	n, err = New("gemini", "custom-model", "test-key")
	if err != nil || n == nil {
		t.Errorf("gemini: narrator = %v, err = %v", n, err)
	}

	if _, err = New("openai", "", ""); !errors.Is(err, model.ErrConfig) {
		t.Errorf("unknown vendor err = %v, want ErrConfig", err)
	}
}

func TestPromptCarriesVerdict(t *testing.T) {
	v := &model.GovernanceVerdict{
		ActionID: "a-1",
		Decision: model.DecisionDenied,
		Reason:   "Denied: critical policy violation.",
	}
	p, err := prompt(v)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	for _, want := range []string{"a-1", "denied", "critical policy violation"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}
