package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Exit statuses recorded when no real exit code is available.
const (
	ExitSpawnFailed = 127 // the command could not be started
	ExitSignaled    = 1   // the process was terminated by a signal
)

// LineFunc receives one line of output without its trailing newline.
type LineFunc func(line string)

// Result is the outcome of one finished command.
type Result struct {
	ExitStatus int
	Stdout     string // everything read from stdout, newlines preserved
	Stderr     string
	StartedAt  time.Time
	Duration   time.Duration
	Err        error // spawn or wait failure; nil for a plain non-zero exit
}

// Success reports whether the command ran and exited with status 0.
func (r Result) Success() bool { return r.Err == nil && r.ExitStatus == 0 }

// Run starts the command described by spec and blocks until it exits.
// stdout and stderr are read concurrently line by line; every line is handed
// to the matching LineFunc (if any) at the moment it is read and also
// accumulated for the Result, so both views observe the same order.
func Run(spec Spec, onStdout, onStderr LineFunc) Result {
	res := Result{StartedAt: time.Now()}
	if err := spec.Validate(); err != nil {
		res.ExitStatus = ExitSpawnFailed
		res.Err = err
		res.Stderr = err.Error() + "\n"
		return res
	}
	cmd := spec.BuildCommand()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return spawnFailed(res, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return spawnFailed(res, err)
	}
	if err := cmd.Start(); err != nil {
		return spawnFailed(res, fmt.Errorf("start %q: %w", spec.String(), err))
	}

	var (
		wg             sync.WaitGroup
		outBuf, errBuf strings.Builder
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(stdout, &outBuf, onStdout)
	}()
	go func() {
		defer wg.Done()
		pump(stderr, &errBuf, onStderr)
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	res.Duration = time.Since(res.StartedAt)
	res.Stdout = outBuf.String()
	res.Stderr = errBuf.String()
	res.ExitStatus = exitStatus(waitErr)
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		res.Err = waitErr
	}
	return res
}

func spawnFailed(res Result, err error) Result {
	res.ExitStatus = ExitSpawnFailed
	res.Err = err
	res.Stderr = err.Error() + "\n"
	res.Duration = time.Since(res.StartedAt)
	return res
}

// pump copies r into buf, calling fn once per line.
func pump(r io.Reader, buf *strings.Builder, fn LineFunc) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			buf.WriteString(line)
			if fn != nil {
				fn(strings.TrimRight(line, "\r\n"))
			}
		}
		if err != nil {
			return
		}
	}
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return ExitSignaled
	}
	return ExitSignaled
}
