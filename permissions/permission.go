package permissions

import (
	_ "embed"
	"encoding/json"
	"slices"

	"github.com/rs/zerolog/log"
)

//go:embed permissions.json
var permissionsData []byte

// Endpoint maps a route pattern and method to the roles allowed through.
// Skip marks endpoints served without authentication at all.
type Endpoint struct {
	Roles  []string `json:"roles"`
	Path   string   `json:"path"`
	Method string   `json:"method"`
	Skip   bool     `json:"skip"`
}

type PermissionData struct {
	Endpoints []Endpoint `json:"endpoints"`
	Skip      bool       `json:"skip"`
}

// FindEndpoint returns the endpoint entry for the given route pattern and
// method. An endpoint without an entry carries no role restriction.
func (r *PermissionData) FindEndpoint(path, method string) Endpoint {
	idx := slices.IndexFunc(r.Endpoints, func(rp Endpoint) bool {
		return rp.Path == path && rp.Method == method
	})

	if idx == -1 {
		return Endpoint{}
	}

	return r.Endpoints[idx]
}

func Get() *PermissionData {
	var permissions PermissionData

	err := json.Unmarshal(permissionsData, &permissions)
	if err != nil {
		log.Err(err).Msg("Failed to decode embedded permissions")

		return nil
	}

	log.Info().Int("endpoints", len(permissions.Endpoints)).Msg("Successfully loaded embedded permissions")

	return &permissions
}
