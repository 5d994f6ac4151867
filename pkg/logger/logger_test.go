package logger

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"DEBUG", "console", false},
		{"warn", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		l, err := New(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q,%q) err=%v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
		}
		if err == nil && l == nil {
			t.Fatalf("New(%q,%q) returned nil logger", tt.level, tt.format)
		}
	}
}
