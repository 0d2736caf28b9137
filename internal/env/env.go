package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds the daemon-wide variables that are added to every deployment
// step, on top of the daemon's own environment. Set and FromOS are for
// setup; once shared, an Env is only read.
type Env struct {
	Var  Var // global variables (K->V)
	base Var // cached base from OS environment, used for ${VAR} lookups only
}

// New captures the process environment as the expansion base.
func New(global map[string]string) *Env {
	e := &Env{Var: make(Var, len(global))}
	for k, v := range global {
		e.Set(k, v)
	}
	e.FromOS()
	return e
}

// FromOS re-reads the process environment as the expansion base.
func (e *Env) FromOS() {
	e.base = parse(os.Environ())
}

// Set sets a global variable K=V. Empty keys are ignored.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Overlay returns the sorted K=V list to append to a step's environment:
// the global variables overridden by perProject entries, with ${VAR}
// references expanded against OS env, globals and perProject (simple
// expansion, no recursion). OS variables are not repeated in the result
// since child processes inherit them anyway.
func (e *Env) Overlay(perProject []string) []string {
	if e == nil {
		e = &Env{}
	}
	overlay := make(Var, len(e.Var))
	for k, v := range e.Var {
		overlay[k] = v
	}
	for k, v := range parse(perProject) {
		overlay[k] = v
	}
	if len(overlay) == 0 {
		return nil
	}

	lookup := make(Var, len(e.base)+len(overlay))
	for k, v := range e.base {
		lookup[k] = v
	}
	for k, v := range overlay {
		lookup[k] = v
	}

	out := make([]string, 0, len(overlay))
	for k, v := range overlay {
		out = append(out, k+"="+expand(v, lookup))
	}
	sort.Strings(out)
	return out
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}
