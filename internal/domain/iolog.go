package domain

// SkippedStatus is the exit status recorded for steps that never ran
// because an earlier step failed.
const SkippedStatus = -1

// IoLog is the persisted result of one finished plan. The root node is the
// last step; Child points at the step that ran before it.
type IoLog struct {
	ExitStatus int         `json:"exit_status"`
	Project    BaseProject `json:"project"`
	Tag        string      `json:"tag,omitempty"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
	Skipped    bool        `json:"skipped,omitempty"`
	Child      *IoLog      `json:"child,omitempty"`
}

// Success reports whether every node of the chain exited with status 0.
func (l *IoLog) Success() bool {
	for n := l; n != nil; n = n.Child {
		if n.Skipped || n.ExitStatus != 0 {
			return false
		}
	}
	return true
}

// Depth returns the number of nodes in the chain.
func (l *IoLog) Depth() int {
	d := 0
	for n := l; n != nil; n = n.Child {
		d++
	}
	return d
}

// Nest links logs given in execution order (first executed first) into a
// chain and returns its root.
func Nest(nodes []IoLog) *IoLog {
	var child *IoLog
	for i := range nodes {
		n := nodes[i]
		n.Child = child
		child = &n
	}
	return child
}
