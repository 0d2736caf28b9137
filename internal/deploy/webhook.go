package deploy

import (
	"context"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/project"
)

// WebhookPayload holds the push fields that mark a request as a real push
// event. Everything else in the body is ignored.
type WebhookPayload struct {
	Before  string `json:"before"`
	After   string `json:"after"`
	Compare string `json:"compare"`
}

func (p WebhookPayload) IsPush() bool {
	return p.Before != "" && p.After != "" && p.Compare != ""
}

type WebhookResult struct {
	Pulled     bool          `json:"pulled"`
	Redeployed *ActionResult `json:"redeployed,omitempty"`
}

// Webhook pulls the project when payload is a push event, and starts it
// again when the project was registered with RedeployOnPush. The caller of a
// webhook cannot ask for more than that. Payloads that are not push events
// are a no-op.
func (s *Service) Webhook(ctx context.Context, bp domain.BaseProject, payload WebhookPayload) (WebhookResult, error) {
	if !payload.IsPush() {
		s.logger.Debug("Ignoring webhook without push fields", "project", bp.Name, "branch", bp.Branch)
		return WebhookResult{}, nil
	}
	p, err := s.Get(bp.Name, bp.Branch)
	if err != nil {
		return WebhookResult{}, err
	}
	if err := s.ws.Pull(bp); err != nil {
		return WebhookResult{}, err
	}
	res := WebhookResult{Pulled: true}
	if !p.RedeployOnPush {
		return res, nil
	}
	act, err := s.Act(ctx, bp, project.ActionCommand{Kind: p.Kind.Type(), Command: project.ActionStart})
	if err != nil {
		return res, err
	}
	res.Redeployed = &act
	return res, nil
}
