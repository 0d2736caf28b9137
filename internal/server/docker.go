package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servcur/internal/domain"
)

func (r *Router) handleSystem(c *gin.Context) {
	info, err := r.docker.Info(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleContainers(c *gin.Context) {
	list, err := r.docker.Containers(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

// handleContainerLogs follows a container's log over a websocket, one text
// frame per timestamped line.
func (r *Router) handleContainerLogs(c *gin.Context) {
	id := c.Param("id")
	if !isSafeRef(id) {
		r.writeError(c, fmt.Errorf("%w: invalid reference %q", domain.ErrInvalid, id))
		return
	}
	var since int64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			r.writeError(c, fmt.Errorf("%w: since must be unix seconds, got %q", domain.ErrInvalid, raw))
			return
		}
		since = v
	}
	src, err := r.docker.ContainerLogs(c.Request.Context(), id, since)
	if err != nil {
		r.writeError(c, err)
		return
	}
	r.bridge.ServeLines(c.Writer, c.Request, src)
}

func (r *Router) handleImages(c *gin.Context) {
	list, err := r.docker.Images(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleVolumes(c *gin.Context) {
	list, err := r.docker.Volumes(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleNetworks(c *gin.Context) {
	list, err := r.docker.Networks(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleRemoveContainer(c *gin.Context) {
	r.remove(c, func(id string) error {
		return r.docker.RemoveContainer(c.Request.Context(), id, queryBool(c, "force"))
	})
}

func (r *Router) handleRemoveImage(c *gin.Context) {
	r.remove(c, func(id string) error {
		return r.docker.RemoveImage(c.Request.Context(), id, queryBool(c, "force"))
	})
}

func (r *Router) handleRemoveVolume(c *gin.Context) {
	r.remove(c, func(id string) error {
		return r.docker.RemoveVolume(c.Request.Context(), id, queryBool(c, "force"))
	})
}

func (r *Router) handleRemoveNetwork(c *gin.Context) {
	r.remove(c, func(id string) error {
		return r.docker.RemoveNetwork(c.Request.Context(), id)
	})
}

func (r *Router) remove(c *gin.Context, fn func(id string) error) {
	id := c.Param("id")
	if !isSafeRef(id) {
		r.writeError(c, fmt.Errorf("%w: invalid reference %q", domain.ErrInvalid, id))
		return
	}
	if err := fn(id); err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
