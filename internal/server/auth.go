package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servcur/internal/auth"
)

func (r *Router) handleLogin(c *gin.Context) {
	if r.auth == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "authentication is disabled"})
		return
	}
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid body: " + err.Error()})
		return
	}
	res, err := r.auth.Login(req.Username, req.Password)
	if err != nil {
		r.logger.Warn("Login failed", "username", req.Username, "remote", c.ClientIP())
		writeJSON(c, http.StatusUnauthorized, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, res)
}
