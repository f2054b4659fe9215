package httpapi

import (
	"net/http"
	"time"
)

type healthResponse struct {
	AppName         string `json:"app_name"`
	Env             string `json:"env"`
	LLMProvider     string `json:"llm_provider"`
	ProviderPresent bool   `json:"provider_present"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		AppName:         h.cfg.AppName,
		Env:             h.cfg.Env,
		LLMProvider:     h.cfg.LLMProvider,
		ProviderPresent: h.cfg.Chat != nil,
		UptimeSeconds:   int64(time.Since(h.cfg.ServerStartTime).Seconds()),
	})
}
