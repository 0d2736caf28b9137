package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servcur/internal/deploy"
	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/project"
)

// baseParam reads and validates the :name/:branch pair.
func baseParam(c *gin.Context) (domain.BaseProject, error) {
	bp := domain.BaseProject{Name: c.Param("name"), Branch: c.Param("branch")}
	if err := project.ValidateBase(bp); err != nil {
		return domain.BaseProject{}, err
	}
	return bp, nil
}

func (r *Router) handleListProjects(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.projects.List())
}

func (r *Router) handleCreateProject(c *gin.Context) {
	var req deploy.NewProject
	if err := c.ShouldBindJSON(&req); err != nil {
		r.writeError(c, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalid, err))
		return
	}
	p, err := r.projects.CreateProject(req)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (r *Router) handleGetProject(c *gin.Context) {
	bp, err := baseParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	p, err := r.projects.Get(bp.Name, bp.Branch)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleRemoveProject(c *gin.Context) {
	bp, err := baseParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	p, err := r.projects.RemoveProject(bp)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleAction(c *gin.Context) {
	bp, err := baseParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	var cmd project.ActionCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		r.writeError(c, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalid, err))
		return
	}
	if err := cmd.Validate(); err != nil {
		r.writeError(c, err)
		return
	}
	res, err := r.projects.Act(c.Request.Context(), bp, cmd)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, res)
}

func (r *Router) handlePull(c *gin.Context) {
	bp, err := baseParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if err := r.projects.Pull(bp); err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleWebhook answers 200 for payloads that are not push events, so
// providers' ping deliveries do not show up as failures.
func (r *Router) handleWebhook(c *gin.Context) {
	bp, err := baseParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	var payload deploy.WebhookPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			r.logger.Debug("Ignoring undecodable webhook body", "project", bp.Name, "branch", bp.Branch, "error", err)
			writeJSON(c, http.StatusOK, deploy.WebhookResult{})
			return
		}
	}
	res, err := r.projects.Webhook(c.Request.Context(), bp, payload)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
