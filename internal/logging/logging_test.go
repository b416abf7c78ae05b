package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := New(debug)
		if err != nil {
			t.Fatalf("New(%v): %v", debug, err)
		}
		if l == nil {
			t.Fatalf("New(%v) returned nil logger", debug)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected a no-op logger")
	}
}
