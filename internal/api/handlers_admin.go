package api

import (
	"net/http"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/model"
)

// handleCatalogReload swaps in the catalog file. A broken file keeps the
// previous catalog active and raises an operator alert.
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	previous := s.deps.Catalogs.Current().Version
	cat, err := s.deps.Catalogs.Reload()
	if err != nil {
		s.deps.Audit.Record(r.Context(), model.AuditCatalogInvalid, "", "", map[string]any{
			"stage":          "reload",
			"active_version": previous,
			"error":          err.Error(),
		})
		writeError(w, r, apperr.CatalogInvalid(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"version":          cat.Version,
		"previous_version": previous,
	})
}
