package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookup(out []string, key string) (string, bool) {
	v, ok := Parse(out)[key]
	return v, ok
}

func TestMergePrecedence(t *testing.T) {
	t.Setenv("TETHER_ENV_TEST", "os")
	e := New().FromOS().Set("TETHER_ENV_TEST", "supervisor").Set("TETHER_BACKEND_PORT", "5173")

	out := e.Merge([]string{"TETHER_ENV_TEST=backend"})
	v, _ := lookup(out, "TETHER_ENV_TEST")
	assert.Equal(t, "backend", v)
	v, _ = lookup(out, "TETHER_BACKEND_PORT")
	assert.Equal(t, "5173", v)
}

func TestMergeExpands(t *testing.T) {
	e := New().Set("PORT", "5173")
	out := e.Merge([]string{"BIND=127.0.0.1:${PORT}", "LEFT=${MISSING}"})
	v, _ := lookup(out, "BIND")
	assert.Equal(t, "127.0.0.1:5173", v)
	v, _ = lookup(out, "LEFT")
	assert.Equal(t, "${MISSING}", v)
}

func TestMergeSkipsMalformed(t *testing.T) {
	out := New().Merge([]string{"=nokey", "novalue", "OK=1"})
	for _, kv := range out {
		assert.NotEqual(t, '=', rune(kv[0]))
	}
	_, ok := lookup(out, "novalue")
	assert.False(t, ok)
	v, _ := lookup(out, "OK")
	assert.Equal(t, "1", v)
}

func TestMergeSorted(t *testing.T) {
	out := New().Merge([]string{"ZZZ_TETHER=1", "AAA_TETHER=2"})
	assert.IsNonDecreasing(t, out)
}

func TestMergeLeavesInheritedValuesVerbatim(t *testing.T) {
	t.Setenv("TETHER_ENV_TEMPLATE", "prefix-${TETHER_ENV_PORT}")
	t.Setenv("TETHER_ENV_PORT", "9999")
	out := New().FromOS().Set("TETHER_ENV_PORT", "5173").Merge([]string{"TETHER_ENV_BIND=:${TETHER_ENV_PORT}"})

	v, _ := lookup(out, "TETHER_ENV_TEMPLATE")
	assert.Equal(t, "prefix-${TETHER_ENV_PORT}", v)
	v, _ = lookup(out, "TETHER_ENV_BIND")
	assert.Equal(t, ":5173", v)
}
