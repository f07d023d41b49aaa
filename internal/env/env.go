package env

import (
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env composes the environment handed to the backend process.
type Env struct {
	base Var // OS environment snapshot, nil until FromOS or Merge
	vars Var // supervisor-provided variables, e.g. the pre-chosen port
}

func New() *Env { return &Env{vars: make(Var)} }

// FromOS snapshots the current process environment as the base.
func (e *Env) FromOS() *Env {
	e.base = Parse(os.Environ())
	return e
}

// Set sets a supervisor variable K=V. Backend-level entries passed to Merge win over it.
func (e *Env) Set(k, v string) *Env {
	if k != "" {
		e.vars[k] = v
	}
	return e
}

// Merge composes the final environment in this order:
// OS env, then Set variables, then each overrides list in turn.
// ${VAR} references in Set values and overrides are expanded once against
// the composed map; inherited OS values pass through untouched.
// The result is sorted so the child sees a stable environment.
func (e *Env) Merge(overrides ...[]string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.vars))
	own := make(map[string]bool, len(e.vars))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
		own[k] = true
	}
	for _, list := range overrides {
		for k, v := range Parse(list) {
			m[k] = v
			own[k] = true
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		if own[k] {
			v = expand(v, m)
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Parse splits K=V entries; entries without '=' or with an empty key are skipped.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

func expand(s string, m Var) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		if v, ok := m[s[i+2:i+j]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}
