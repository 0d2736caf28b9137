package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/stream"
)

func (r *Router) handleListExecutions(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.executions.ListLive())
}

// handleStream upgrades to a websocket carrying one output stream of a live
// execution.
func (r *Router) handleStream(c *gin.Context) {
	id, err := executionParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	sel, err := stream.ParseSelector(c.Param("stream"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	if err := r.bridge.Serve(c.Writer, c.Request, id, sel); err != nil {
		r.writeError(c, err)
	}
}

// executionParam reads the :id parameter. A string that is not an id names
// no execution, so it is reported as not found.
func executionParam(c *gin.Context) (domain.ExecutionID, error) {
	raw := c.Param("id")
	id, err := domain.ParseExecutionID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: execution %q", domain.ErrNotFound, raw)
	}
	return id, nil
}

func (r *Router) handleListLogs(c *gin.Context) {
	entries, err := r.logs.List()
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, entries)
}

// handleGetLog returns the stored file as is.
func (r *Router) handleGetLog(c *gin.Context) {
	id, err := executionParam(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	b, err := r.logs.ReadRaw(id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", b)
}
