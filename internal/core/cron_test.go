package core

import (
	"testing"
	"time"
)

func TestNextExecution_NeverFires(t *testing.T) {
	_, ok, err := NextExecution(CronNever, time.UTC, time.Now())
	if err != nil {
		t.Fatalf("NextExecution(CronNever) error = %v", err)
	}
	if ok {
		t.Error("CronNever should never fire")
	}
}

func TestNextExecution_TimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	next, ok, err := NextExecution("0 9 * * *", loc, from)
	if err != nil || !ok {
		t.Fatalf("NextExecution() = %v, %v, %v", next, ok, err)
	}
	want := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next.UTC(), want)
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{"not a cron", "* * *", "61 * * * *"} {
		if _, err := ParseCron(expr, nil); err == nil {
			t.Errorf("ParseCron(%q) expected error", expr)
		}
	}
}

func TestParseCron_Descriptor(t *testing.T) {
	if _, err := ParseCron("@hourly", time.UTC); err != nil {
		t.Errorf("ParseCron(@hourly) error = %v", err)
	}
}

func TestLoadTimeZone(t *testing.T) {
	def := time.FixedZone("X", 3600)
	loc, err := LoadTimeZone("", def)
	if err != nil || loc != def {
		t.Errorf("LoadTimeZone(\"\") = %v, %v; want default", loc, err)
	}
	if _, err := LoadTimeZone("Mars/Olympus", def); err == nil {
		t.Error("expected error for unknown zone")
	}
}
