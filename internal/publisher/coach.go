package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/llm"
)

const defaultCoachPrompt = "Ты дружелюбный тренер группы по привычкам. По итогам недели напиши 2-3 коротких " +
	"предложения поддержки на русском: отметь лучших, подбодри отстающих. Без списков и эмодзи-перечислений."

const coachTimeout = 30 * time.Second

// Coach writes a short motivational note for a weekly summary.
type Coach struct {
	client llm.Client
	prompt string
}

func NewCoach(client llm.Client, prompt string) *Coach {
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultCoachPrompt
	}
	return &Coach{client: client, prompt: prompt}
}

// LoadPrompt reads the system prompt from path. A missing file yields the
// built-in prompt.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return defaultCoachPrompt, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultCoachPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("read coach prompt: %w", err)
	}
	return string(data), nil
}

func (c *Coach) Note(ctx context.Context, summaryText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, coachTimeout)
	defer cancel()
	resp, err := c.client.Generate(ctx, []llm.Message{
		{Role: "system", Content: c.prompt},
		{Role: "user", Content: summaryText},
	})
	if err != nil {
		return "", err
	}
	log.Printf("🧠 coach note: model=%s tokens=%d", resp.Model, resp.TotalTokens)
	return strings.TrimSpace(resp.Content), nil
}

// Publisher turns summaries into the message posted to a chat.
type Publisher struct {
	name  NameFunc
	coach *Coach
}

// New creates a Publisher. coach may be nil.
func New(name NameFunc, coach *Coach) *Publisher {
	return &Publisher{name: name, coach: coach}
}

// Render formats the summary and appends the coach note when available.
// Coach failures never block publishing.
func (p *Publisher) Render(ctx context.Context, sum *analytics.WeeklySummary, history []analytics.WeekTotals) string {
	text := FormatSummary(sum, history, p.name)
	if p.coach == nil {
		return text
	}
	note, err := p.coach.Note(ctx, text)
	if err != nil {
		log.Printf("⚠️ coach note skipped: %v", err)
		return text
	}
	if note == "" {
		return text
	}
	return text + "\n\n💬 " + note
}
