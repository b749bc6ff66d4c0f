package config

import (
	"testing"
	"time"
)

func TestStringFallsBackOnBlank(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "  ")
	if got := String("CFG_TEST_STR", "dflt"); got != "dflt" {
		t.Errorf("String = %q, want dflt", got)
	}
	t.Setenv("CFG_TEST_STR", "value")
	if got := String("CFG_TEST_STR", "dflt"); got != "value" {
		t.Errorf("String = %q, want value", got)
	}
}

func TestIntParsing(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	if got := Int("CFG_TEST_INT", 7); got != 42 {
		t.Errorf("Int = %d, want 42", got)
	}
	t.Setenv("CFG_TEST_INT", "not a number")
	if got := Int("CFG_TEST_INT", 7); got != 7 {
		t.Errorf("Int with garbage = %d, want 7", got)
	}
}

func TestBoolParsing(t *testing.T) {
	t.Setenv("CFG_TEST_BOOL", "true")
	if !Bool("CFG_TEST_BOOL", false) {
		t.Error("Bool(true) = false")
	}
	t.Setenv("CFG_TEST_BOOL", "yes")
	if !Bool("CFG_TEST_BOOL", true) {
		t.Error("Bool with garbage ignored fallback")
	}
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("CFG_TEST_DUR", "150ms")
	if got := Duration("CFG_TEST_DUR", time.Second); got != 150*time.Millisecond {
		t.Errorf("Duration = %v, want 150ms", got)
	}
}

func TestFloatParsing(t *testing.T) {
	t.Setenv("CFG_TEST_FLOAT", "1.5")
	if got := Float("CFG_TEST_FLOAT", 1.0); got != 1.5 {
		t.Errorf("Float = %v, want 1.5", got)
	}
}
