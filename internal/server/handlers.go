package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dbdeck-labs/dbdeck/internal/analyze"
	"github.com/dbdeck-labs/dbdeck/internal/gateway"
	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.instances.List(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if instances == nil {
		instances = []*core.Instance{}
	}
	respondJSON(w, http.StatusOK, instances)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	inst, err := s.instances.Get(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var params registry.CreateParams
	if err := decodeBody(r, &params); err != nil {
		s.respondError(w, r, err)
		return
	}
	params.UserID = userID(r)

	inst, err := s.instances.Create(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":  "instance created",
		"instance": inst,
	})
}

func (s *Server) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var params registry.UpdateParams
	if err := decodeBody(r, &params); err != nil {
		s.respondError(w, r, err)
		return
	}

	inst, err := s.instances.Update(r.Context(), id, userID(r), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":  "instance updated",
		"instance": inst,
	})
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.instances.Delete(r.Context(), id, userID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "instance deleted"})
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	databases, err := s.schema.ListDatabases(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"databases": databases})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	tables, err := s.schema.ListTables(r.Context(), id, userID(r), chi.URLParam(r, "database"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"tables": tables})
}

func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	meta, err := s.schema.TableSchema(r.Context(), id,
		chi.URLParam(r, "database"), chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"schema": meta})
}

func (s *Server) handleAnalyzeSQL(w http.ResponseWriter, r *http.Request) {
	var req analyze.Request
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.UserID = userID(r)

	resp, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.UserID = userID(r)

	result, err := s.executor.Execute(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetricsHealth(w http.ResponseWriter, r *http.Request) {
	ok := s.health.Healthy(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, map[string]bool{"prometheus_ok": ok})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	id, err := instanceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	summary, err := s.metrics.Summary(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
