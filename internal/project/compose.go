package project

import "github.com/loykin/servcur/internal/domain"

// ComposeStrategy drives the repository's compose file. It keeps no state.
type ComposeStrategy struct{}

func (ComposeStrategy) Run(a Action, dir string, bp domain.BaseProject) domain.Plan {
	var args []string
	switch a {
	case ActionStart:
		args = []string{"compose", "up", "-d"}
	case ActionStop:
		args = []string{"compose", "stop"}
	default:
		args = []string{"compose", "up", "-d", "--force-recreate"}
	}
	return domain.NewPlan(bp, docker(dir, args...))
}
