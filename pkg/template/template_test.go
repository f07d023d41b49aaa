package template

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKnownTypes(t *testing.T) {
	g := NewGenerator()
	for _, typ := range append(g.GetSupportedTypes(), string(TypeFastAPI)) {
		t.Run(typ, func(t *testing.T) {
			tpl, err := g.Generate(TemplateType(typ), "app", 0)
			require.NoError(t, err)
			assert.Equal(t, "app", tpl.Backend.Name)
			assert.Equal(t, 5173, tpl.Backend.Port)
			assert.Equal(t, "127.0.0.1", tpl.Backend.Host)
			assert.NotEmpty(t, tpl.Backend.Command)
			assert.NotEmpty(t, tpl.Readiness.Probe)
		})
	}
}

func TestGenerateUnknownType(t *testing.T) {
	_, err := NewGenerator().Generate("cobol", "x", 0)
	assert.Error(t, err)
	_, err = NewGenerator().GenerateTOML("cobol", "x", 0)
	assert.Error(t, err)
}

func TestGenerateTOMLRoundTrips(t *testing.T) {
	out, err := NewGenerator().GenerateTOML(TypeNode, "", 8080)
	require.NoError(t, err)

	var back ConfigTemplate
	require.NoError(t, toml.Unmarshal(out, &back))
	assert.Equal(t, "backend", back.Backend.Name)
	assert.Equal(t, 8080, back.Backend.Port)
	assert.Contains(t, back.Backend.Env, "PORT=8080")
	assert.Equal(t, "http", back.Readiness.Probe)
	assert.Equal(t, "/health", back.Readiness.HealthPath)
	assert.Equal(t, "5s", back.Shutdown.Grace)
	assert.Contains(t, string(out), "[backend]")
	assert.Contains(t, string(out), "[readiness]")
}

func TestPythonCommandUsesPort(t *testing.T) {
	tpl, err := NewGenerator().Generate(TypePython, "py", 9000)
	require.NoError(t, err)
	assert.Contains(t, tpl.Backend.Command, "--port 9000")
}
