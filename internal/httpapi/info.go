package httpapi

import (
	"net/http"
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

// ServerInfo describes the local engine and what each entity supports
type ServerInfo struct {
	APIVersion string                      `json:"apiVersion"`
	ServerTime string                      `json:"serverTime"`
	Online     bool                        `json:"online"`
	Syncing    bool                        `json:"syncing"` // a sync pass is in progress
	Entities   map[string]EntityCapability `json:"entities"`
	RateLimit  *RateLimitInfo              `json:"rateLimit,omitempty"`
	Hints      *SyncHints                  `json:"hints,omitempty"`
}

// RateLimitInfo describes the API's rate limiting policy
type RateLimitInfo struct {
	WindowSeconds int `json:"windowSeconds"` // e.g. 60
	MaxRequests   int `json:"maxRequests"`   // per window
	Burst         int `json:"burst"`         // token bucket size
}

// SyncHints provides recommendations for client behavior
type SyncHints struct {
	MaxPageSize    int `json:"maxPageSize"`
	BackoffMsOn429 int `json:"backoffMsOn429"`
}

// EntityCapability lists the operations and duplicate keys of one entity
type EntityCapability struct {
	Operations   []model.EventType `json:"operations"`
	UniqueKey    string            `json:"uniqueKey,omitempty"`
	SecondaryKey string            `json:"secondaryKey,omitempty"`
	NameField    string            `json:"nameField,omitempty"`
}

// Info handles GET /v1/info. It is served without authentication.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	ents := make(map[string]EntityCapability, len(model.Entities))
	for _, e := range model.Entities {
		sc, _ := model.Schema(e)
		ents[string(e)] = EntityCapability{
			Operations:   []model.EventType{model.EventCreate, model.EventUpdate, model.EventDelete, model.EventMove},
			UniqueKey:    sc.UniqueKey,
			SecondaryKey: sc.SecondaryKey,
			NameField:    sc.NameField,
		}
	}

	info := ServerInfo{
		APIVersion: "1.0",
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
		Online:     s.online(),
		Syncing:    s.Svc != nil && s.Svc.Sync != nil && s.Svc.Sync.Running(),
		Entities:   ents,
		Hints: &SyncHints{
			MaxPageSize:    maxPageSize,
			BackoffMsOn429: 1500,
		},
	}
	if s.RateLimitConfig.MaxRequests > 0 {
		rl := s.RateLimitConfig
		info.RateLimit = &rl
	}

	writeJSON(w, http.StatusOK, info)
}
