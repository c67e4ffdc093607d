package logging

import "testing"

func TestNewLoggerWithService(t *testing.T) {
	l := NewLoggerWithService("responder")
	entry := l.WithField("user_id", "u-1")
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
}
