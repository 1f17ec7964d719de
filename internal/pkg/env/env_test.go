package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	t.Setenv("TICKERFOX_TEST_KEY", "from-os")
	Env = map[string]string{"TICKERFOX_TEST_KEY": "from-file"}
	assert.Equal(t, "from-file", GetEnv("TICKERFOX_TEST_KEY", "default"))

	Env = map[string]string{}
	assert.Equal(t, "from-os", GetEnv("TICKERFOX_TEST_KEY", "default"))
	assert.Equal(t, "default", GetEnv("TICKERFOX_MISSING_KEY", "default"))
}
