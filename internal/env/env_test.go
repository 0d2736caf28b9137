package env

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlayMergesAndExpands(t *testing.T) {
	t.Setenv("SERVCUR_TEST_HOME", "/home/deploy")

	e := New(map[string]string{"REGION": "eu", "CACHE": "${SERVCUR_TEST_HOME}/cache"})
	out := e.Overlay([]string{"REGION=us", "TARGET=${REGION}-prod", "=skipped", "noequals"})

	assert.Equal(t, []string{
		"CACHE=/home/deploy/cache",
		"REGION=us",
		"TARGET=us-prod",
	}, out)
}

func TestOverlayDoesNotMutate(t *testing.T) {
	t.Setenv("SERVCUR_TEST_LATE", "before")
	e := New(map[string]string{"X": "${SERVCUR_TEST_LATE}"})
	t.Setenv("SERVCUR_TEST_LATE", "after")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, []string{"X=before"}, e.Overlay(nil))
		}()
	}
	wg.Wait()

	e.FromOS()
	assert.Equal(t, []string{"X=after"}, e.Overlay(nil))
}

func TestOverlayEmpty(t *testing.T) {
	assert.Nil(t, New(nil).Overlay(nil))
	var e *Env
	assert.Equal(t, []string{"A=1"}, e.Overlay([]string{"A=1"}))
}

func TestSetIgnoresEmptyKey(t *testing.T) {
	e := New(nil)
	e.Set("", "x")
	e.Set("K", "v")
	assert.Equal(t, Var{"K": "v"}, e.Var)
}

func FuzzOverlay(f *testing.F) {
	f.Add("A=1", "B=${A}-x")
	f.Add("FOO=bar", "FOO=${FOO}")
	f.Add("X=$Y", "Y=${X}")

	f.Fuzz(func(t *testing.T, global, per string) {
		e := New(parse([]string{global}))
		for _, kv := range e.Overlay([]string{per}) {
			if len(kv) == 0 || kv[0] == '=' {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}
