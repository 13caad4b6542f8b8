package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedMap(t *testing.T) {
	Env = map[string]string{"CHATFOX_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CHATFOX_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("CHATFOX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("CHATFOX_MISSING_KEY", "def"))
}

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"INT_OK":    "7",
		"INT_BAD":   "seven",
		"DUR_GO":    "90s",
		"DUR_SECS":  "45",
		"DUR_BAD":   "soon",
		"BOOL_TRUE": "true",
		"BOOL_BAD":  "maybe",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 7, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 3, GetEnvInt("INT_MISSING", 3))

	assert.Equal(t, 90*time.Second, GetEnvDuration("DUR_GO", time.Minute))
	assert.Equal(t, 45*time.Second, GetEnvDuration("DUR_SECS", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("DUR_BAD", time.Minute))

	assert.True(t, GetEnvBool("BOOL_TRUE", false))
	assert.False(t, GetEnvBool("BOOL_BAD", false))
	assert.True(t, GetEnvBool("BOOL_MISSING", true))
}
