package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/logflow/internal/runtime/jsoncodec"
)

// StartWebUIServer registers the stats API on the web UI port when enabled.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}
	port := s.Conf.WebUIPort
	s.RegisterHTTPHandler(port, "/api/stats", s.api(http.MethodGet, s.handleGetStats))
	s.RegisterHTTPHandler(port, "/api/stats/reset", s.api(http.MethodPost, s.handleResetStats))
	s.RegisterHTTPHandler(port, "/api/pipelines", s.api(http.MethodGet, s.handleGetPipelines))
}

// api applies CORS headers, answers preflight requests and rejects other methods.
func (s *Service) api(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
			if allowed := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case method:
			next(w, r)
		default:
			w.Header().Set("Allow", method+", OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (s *Service) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.stats.Snapshot())
}

func (s *Service) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	s.stats.Reset()
	s.Logger.Info("Stats reset through the web UI", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGetPipelines(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.Pipelines())
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode web UI response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
