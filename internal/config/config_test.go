package config

import (
	"os"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Timezone != "Europe/Moscow" || cfg.DefaultDay != "sunday" || cfg.DefaultTime != "10:00" {
		t.Fatalf("unexpected calendar defaults: %+v", cfg)
	}
	if cfg.RemindAfter != 7*time.Hour || cfg.PublishAfter != 10*time.Hour {
		t.Fatalf("unexpected offsets: %v %v", cfg.RemindAfter, cfg.PublishAfter)
	}
	if cfg.AggregationMode != "sum" || cfg.HistoryWeeks != 5 {
		t.Fatalf("unexpected aggregation defaults: %+v", cfg)
	}
}

func TestParse_RequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "restored-after-test")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")
	if _, err := Parse(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestParse_RejectsBadValues(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	if _, err := Parse(); err == nil {
		t.Fatalf("expected timezone error")
	}
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("AGGREGATION_POLICY", "max")
	if _, err := Parse(); err == nil {
		t.Fatalf("expected policy error")
	}
}

func TestParseData_NoToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("STORE_FILE_PATH", "/tmp/x.json")
	t.Setenv("HISTORY_WEEKS", "0")
	d, err := ParseData()
	if err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if d.StoreFilePath != "/tmp/x.json" || d.HistoryWeeks != 1 || d.Timezone != "Europe/Moscow" {
		t.Fatalf("unexpected data config: %+v", d)
	}
}

func TestParse_EmbeddedData(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("SCHEDULE_DB_PATH", "db/s.db")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ScheduleDBPath != "db/s.db" || cfg.StoreFilePath != "data/habits.json" {
		t.Fatalf("embedded settings not parsed: %+v", cfg.Data)
	}
}
