package routes

import (
	"net/http"

	"pixconv/models"
)

type codecInfo struct {
	Name         string                   `json:"name"`
	Capabilities models.CodecCapabilities `json:"capabilities"`
	Loaded       bool                     `json:"loaded"`
}

// CodecsHandler lists the registered codecs in registration order.
func (s *Server) CodecsHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Registry == nil {
		unavailable(w, "codec registry")
		return
	}
	list := make([]codecInfo, 0)
	for _, name := range s.Registry.Names() {
		inst, ok := s.Registry.Instance(name)
		if !ok {
			continue
		}
		list = append(list, codecInfo{Name: name, Capabilities: inst.Capabilities, Loaded: inst.Loaded})
	}
	writeJSON(w, http.StatusOK, map[string]any{"codecs": list, "count": len(list)})
}
