package logging

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"":        LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitStdout(t *testing.T) {
	if err := Init(StoreStdout, "", LevelDebug); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("test", "hello %s", "world")
	Error("test", nil, "oops")
}

func TestInitFileRequiresStoreName(t *testing.T) {
	if err := Init(StoreFile, "", LevelInfo); err == nil {
		t.Fatal("expected error when log.storeName is empty")
	}
}
