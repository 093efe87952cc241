package timeouts_test

import (
	"testing"
	"time"

	"github.com/dalemusser/huddle/internal/app/system/timeouts"
)

func TestConfigureAndReset(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second})

	if got := timeouts.Short(); got != 7*time.Second {
		t.Errorf("Short() = %s, want 7s", got)
	}
	// Zero values keep the defaults.
	if got := timeouts.Ping(); got != timeouts.DefaultPing {
		t.Errorf("Ping() = %s, want default %s", got, timeouts.DefaultPing)
	}
	if got := timeouts.Medium(); got != timeouts.DefaultMedium {
		t.Errorf("Medium() = %s, want default %s", got, timeouts.DefaultMedium)
	}

	timeouts.Reset()
	if got := timeouts.Short(); got != timeouts.DefaultShort {
		t.Errorf("Short() after Reset = %s, want default %s", got, timeouts.DefaultShort)
	}
}
