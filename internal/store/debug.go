package store

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/retarget/internal/httputil"
)

// AttachDebugRoutes mounts tailsql and the config endpoints under /debug/ on mux.
func (s *Store) AttachDebugRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Retarget DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("configs", "Stored retarget configurations", http.HandlerFunc(s.handleConfigs))
	debug.HandleSilentFunc("config", s.handleConfig)
	return nil
}

func (s *Store) handleConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.ListConfigs()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list configs: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, configs)
}

// handleConfig serves the serialized backend config for ?id=.
func (s *Store) handleConfig(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	rec, err := s.LoadConfig(id)
	if errors.Is(err, ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	data, err := rec.Params.Marshal()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
