package restserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/icecat/internal/rest"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	var parent types.Namespace
	if raw := r.URL.Query().Get(rest.ParamParent); raw != "" {
		ns, err := rest.DecodeNamespace(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		parent = ns
	}
	resp, err := s.transport.ListNamespaces(r.Context(), parent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Namespaces == nil {
		resp.Namespaces = [][]string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req rest.CreateNamespaceRequest
	if !s.decode(w, r, &req) {
		return
	}
	ns, err := types.NewNamespace(req.Namespace...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transport.CreateNamespace(r.Context(), ns, req.Properties); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDropNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transport.DropNamespace(r.Context(), ns); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	ns, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.transport.ListTables(r.Context(), ns)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Identifiers == nil {
		resp.Identifiers = []types.TableEntry{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	ns, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.CreateTableRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.transport.CreateTable(r.Context(), ns, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTableExists(w http.ResponseWriter, r *http.Request) {
	ns, name, err := tableParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transport.TableExists(r.Context(), ns, name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadTable(w http.ResponseWriter, r *http.Request) {
	ns, name, err := tableParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.transport.LoadTable(r.Context(), ns, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	ns, name, err := tableParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.CommitTableRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.transport.UpdateTable(r.Context(), ns, name, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("table committed", "namespace", ns.String(), "table", name, "location", resp.MetadataLocation)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	ns, name, err := tableParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	purge := false
	if raw := r.URL.Query().Get(rest.ParamPurge); raw != "" {
		purge, err = strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			s.writeError(w, r, types.ErrInvalidRequest)
			return
		}
	}
	if err := s.transport.DropTable(r.Context(), ns, name, purge); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameTable(w http.ResponseWriter, r *http.Request) {
	var req types.RenameTableRequest
	if !s.decode(w, r, &req) {
		return
	}
	from, err := types.FromParts(req.Source.Namespace, req.Source.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := types.FromParts(req.Destination.Namespace, req.Destination.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.transport.RenameTable(r.Context(), from, to); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
