package testutil

import "testing"

// Given, When and Then name nested subtests after the step they describe, so
// failures read as scenarios in go test output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("when "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("then "+desc, fn)
}
