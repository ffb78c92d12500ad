// Package testing puts any test binary that imports it into test mode and
// supplies the secrets the configuration loader insists on.
package testing

import (
	"os"
	stdtesting "testing"
)

var defaults = map[string]string{
	"SAFESPORA_TEST_MODE": "1",
	"SESSION_SECRET":      "test-session-secret",
	"CSRF_SECRET":         "test-csrf-secret",
	"APP_ENV":             "test",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok || key == "SAFESPORA_TEST_MODE" {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain is exported for packages that want to delegate to it explicitly.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
