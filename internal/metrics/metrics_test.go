package metrics

import "testing"

func TestRegister_NoPanic(t *testing.T) {
	// The sync.Once inside Register() makes repeated calls idempotent.
	Register()
	Register() // second call should be a no-op
}
