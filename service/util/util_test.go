package util

import (
	"bytes"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestVerifyAPIKey(t *testing.T) {
	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "bearer", header: "Bearer secret", want: true},
		{name: "bearer wrong", header: "Bearer nope", want: false},
		{name: "basic", header: basic("anyone", "secret"), want: true},
		{name: "basic wrong", header: basic("anyone", "nope"), want: false},
		{name: "basic garbage", header: "Basic !!!", want: false},
		{name: "missing", header: "", want: false},
		{name: "unknown scheme", header: "Token secret", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := VerifyAPIKey(r, "secret"); got != tt.want {
				t.Errorf("VerifyAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{time.Hour + 2*time.Second, "1h 2s"},
		{26*time.Hour + 3*time.Minute, "1d 2h 3m"},
	}

	for _, tt := range tests {
		if got := FormatUptime(tt.in); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.With("component", "bridge").WithGroup("rpc").Debug("Native event", "event", "handleUrlCalled")

	line := buf.String()
	for _, want := range []string{"[DEBUG] Native event", "component=bridge", "rpc.event=handleUrlCalled"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\033[") {
		t.Error("colors written to a non-terminal writer")
	}
}

func TestConsoleHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil))

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil))
	cause := errors.New("boom")

	err := LogError(logger, "Failed to open store", cause, "path", "/tmp/x")
	if !errors.Is(err, cause) {
		t.Errorf("LogError() = %v, want wrapping %v", err, cause)
	}
	if err.Error() != "Failed to open store: boom" {
		t.Errorf("LogError() message = %q", err.Error())
	}
	if !strings.Contains(buf.String(), "path=/tmp/x") {
		t.Errorf("log line = %q", buf.String())
	}
}
