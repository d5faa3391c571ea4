package llm

import (
	"testing"

	"habit-tracker/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(&config.Config{LLMProvider: "OpenAI", OpenAIAPIKey: "k", OpenAIModel: "m"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if oc, ok := c.(*OpenAIClient); !ok || oc.model != "m" {
		t.Fatalf("unexpected client: %#v", c)
	}
	if _, err := NewFromConfig(&config.Config{LLMProvider: "openai"}); err == nil {
		t.Fatalf("missing key must fail")
	}
	if _, err := NewFromConfig(&config.Config{LLMProvider: "claude"}); err == nil {
		t.Fatalf("unknown provider must fail")
	}
}
