package main

import (
	"testing"
)

// Smoke test to ensure main honors SKIP_SERVER_RUN and does not block test runs.
func TestMainSkipsWhenEnvSet(t *testing.T) {
	t.Setenv("SKIP_SERVER_RUN", "1")
	main()
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	if err := run(); err == nil {
		t.Fatalf("expected invalid store driver to fail before serving")
	}
}

func TestRunRejectsMissingVenueFile(t *testing.T) {
	t.Setenv("VENUE_FILE", t.TempDir()+"/nope.yaml")
	if err := run(); err == nil {
		t.Fatalf("expected missing venue file to fail")
	}
}
