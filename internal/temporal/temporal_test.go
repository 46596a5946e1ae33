package temporal

import (
	"testing"
	"time"
)

func ref() time.Time {
	return time.Date(2026, time.July, 29, 12, 0, 0, 0, time.UTC)
}

func TestParseExpressionTomorrow(t *testing.T) {
	r := NewResolver(ref(), nil)
	info, ok := r.ParseExpression("tomorrow")
	if !ok {
		t.Fatal("expected tomorrow to parse")
	}
	if info.Kind != Relative {
		t.Errorf("expected Relative kind, got %s", info.Kind)
	}
	want := ref().AddDate(0, 0, 1)
	if !info.Start.Equal(want) {
		t.Errorf("expected %v, got %v", want, info.Start)
	}
}

func TestParseExpressionDaysAgo(t *testing.T) {
	r := NewResolver(ref(), nil)
	info, ok := r.ParseExpression("3 days ago")
	if !ok {
		t.Fatal("expected '3 days ago' to parse")
	}
	want := ref().AddDate(0, 0, -3)
	if !info.Start.Equal(want) {
		t.Errorf("expected %v, got %v", want, info.Start)
	}
}

func TestParseExpressionISODate(t *testing.T) {
	r := NewResolver(ref(), nil)
	info, ok := r.ParseExpression("2026-08-15")
	if !ok {
		t.Fatal("expected ISO date to parse")
	}
	if info.Kind != Absolute {
		t.Errorf("expected Absolute kind, got %s", info.Kind)
	}
	if info.Start.Year() != 2026 || info.Start.Month() != time.August || info.Start.Day() != 15 {
		t.Errorf("unexpected parsed date: %v", info.Start)
	}
}

func TestParseExpressionNextWeekday(t *testing.T) {
	r := NewResolver(ref(), nil)
	info, ok := r.ParseExpression("next monday")
	if !ok {
		t.Fatal("expected 'next monday' to parse")
	}
	if info.Start.Weekday() != time.Monday {
		t.Errorf("expected a Monday, got %s", info.Start.Weekday())
	}
	if !info.Start.After(ref()) {
		t.Errorf("expected next monday to be after the reference time, got %v", info.Start)
	}
}

func TestParseExpressionInvalid(t *testing.T) {
	r := NewResolver(ref(), nil)
	if _, ok := r.ParseExpression("not a time expression at all"); ok {
		t.Error("expected an unparseable expression to fail")
	}
}

func TestParseExpressionsFindsMultiple(t *testing.T) {
	r := NewResolver(ref(), nil)
	infos := r.ParseExpressions("Let's meet tomorrow, or if not then next friday")
	if len(infos) < 2 {
		t.Errorf("expected at least two temporal expressions, got %d: %+v", len(infos), infos)
	}
}

func TestValid(t *testing.T) {
	if Valid(time.Time{}) {
		t.Error("expected zero time to be invalid")
	}
	if !Valid(ref()) {
		t.Error("expected reference time to be valid")
	}
}
