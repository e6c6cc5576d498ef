package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	Version, Commit = "v1.2.3", "abcd123"

	got := String()
	for _, want := range []string{"ans v1.2.3", "commit=abcd123", "go=" + GoVersion} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, want it to contain %q", got, want)
		}
	}
}
