package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

// Data locates the tracker's files and how they are aggregated. The bot and
// the operator tools share it.
type Data struct {
	Timezone        string `env:"TIMEZONE" envDefault:"Europe/Moscow"`
	HistoryWeeks    int    `env:"HISTORY_WEEKS" envDefault:"5"`
	AggregationMode string `env:"AGGREGATION_POLICY" envDefault:"sum"`

	StoreFilePath        string `env:"STORE_FILE_PATH" envDefault:"data/habits.json"`
	RosterFilePath       string `env:"ROSTER_FILE_PATH" envDefault:"config/roster.yaml"`
	ParticipantsFilePath string `env:"PARTICIPANTS_FILE_PATH" envDefault:"data/participants.json"`
	PendingFilePath      string `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`
	ScheduleDBPath       string `env:"SCHEDULE_DB_PATH" envDefault:"data/schedules.db"`
}

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`
	// Group chat that receives weekly summaries until /schedule is used there.
	ReportChatID int64 `env:"REPORT_CHAT_ID"`

	Data

	// Calendar
	DefaultDay     string        `env:"DEFAULT_SCHEDULE_DAY" envDefault:"sunday"`
	DefaultTime    string        `env:"DEFAULT_SCHEDULE_TIME" envDefault:"10:00"`
	RemindAfter    time.Duration `env:"REMIND_AFTER" envDefault:"7h"`
	PublishAfter   time.Duration `env:"PUBLISH_AFTER" envDefault:"10h"`
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"0s"`

	// Goals for participants approved through /join
	DefaultPagesGoal   float64 `env:"DEFAULT_PAGES_GOAL" envDefault:"50"`
	DefaultMinutesGoal float64 `env:"DEFAULT_EXERCISE_MINUTES_GOAL" envDefault:"300"`

	// Coach note appended to weekly summaries (optional)
	CoachEnabled     bool        `env:"COACH_ENABLED" envDefault:"false"`
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	CoachPromptPath  string      `env:"COACH_PROMPT_PATH" envDefault:"prompts/coach_prompt.txt"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the environment and validates the calendar settings.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Data.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseData reads only the data settings, without requiring bot credentials.
func ParseData() (*Data, error) {
	d := &Data{}
	if err := env.Parse(d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Data) validate() error {
	if _, err := d.Location(); err != nil {
		return err
	}
	switch d.AggregationMode {
	case "sum", "last":
	default:
		return fmt.Errorf("AGGREGATION_POLICY must be sum or last, got %q", d.AggregationMode)
	}
	if d.HistoryWeeks < 1 {
		d.HistoryWeeks = 1
	}
	return nil
}

// Location resolves Timezone.
func (d *Data) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", d.Timezone, err)
	}
	return loc, nil
}
