package project

import (
	"fmt"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/process"
)

// BuildStepTag tags the image build step of a Dockerfile start.
const BuildStepTag = "build_step"

// DockerfileStrategy builds the repository's Dockerfile into a versioned image
// and runs one container per version.
type DockerfileStrategy struct {
	ImageVersion int `json:"image_version"`
}

// ImageTag is the image built for version v, "<name>-<branch>:<v>".
func ImageTag(bp domain.BaseProject, v int) string {
	return fmt.Sprintf("%s-%s:%d", bp.Name, bp.Branch, v)
}

// ContainerName is the container run for version v, "<name>-<branch>-<v>".
func ContainerName(bp domain.BaseProject, v int) string {
	return fmt.Sprintf("%s-%s-%d", bp.Name, bp.Branch, v)
}

func (d *DockerfileStrategy) Run(a Action, dir string, bp domain.BaseProject) domain.Plan {
	switch a {
	case ActionStart:
		return d.start(dir, bp)
	case ActionStop:
		return domain.NewPlan(bp, docker(dir, "stop", ContainerName(bp, d.ImageVersion)))
	default:
		return domain.NewPlan(bp, docker(dir, "restart", ContainerName(bp, d.ImageVersion)))
	}
}

// start bumps the version and chains build before run.
func (d *DockerfileStrategy) start(dir string, bp domain.BaseProject) domain.Plan {
	d.ImageVersion++
	image := ImageTag(bp, d.ImageVersion)
	build := docker(dir, "build", ".", "-t", image)
	run := docker(dir, "run", "-d", "--name", ContainerName(bp, d.ImageVersion), image)
	return domain.NewPlan(bp, run).DependsOnTagged(build, BuildStepTag)
}

func docker(dir string, args ...string) process.Spec {
	return process.Spec{Program: "docker", Args: args, WorkDir: dir}
}
