package domain

import "fmt"

// BaseProject is the (name, branch) identity used wherever a project is
// addressed without its full record.
type BaseProject struct {
	Name   string `json:"name" form:"name"`
	Branch string `json:"branch" form:"branch"`
}

func (b BaseProject) String() string { return fmt.Sprintf("%s/%s", b.Name, b.Branch) }
