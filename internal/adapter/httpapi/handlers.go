package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"query-assistant/internal/domain/entity"
	"query-assistant/internal/usecase/gateway"
)

const maxBodyBytes = 1 << 20

// ThreadID accepts a JSON number or string.
type ThreadID string

func (id *ThreadID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ThreadID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("thread_id must be a number or a string")
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("thread_id must be an integer, got %s", n)
	}
	*id = ThreadID(entity.ThreadIDFromInt(i))
	return nil
}

type queryRequest struct {
	ThreadID  ThreadID `json:"thread_id"`
	UserInput string   `json:"user_input"`
	Lang      string   `json:"lang"`
	Domain    string   `json:"domain"`
}

type queryResponse struct {
	Response string `json:"response"`
}

type setupResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection"`
	Files      int    `json:"files"`
	Chunks     int    `json:"chunks"`
}

type setupAllResponse struct {
	Status      string          `json:"status"`
	Collections []setupResponse `json:"collections"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	if req.Domain != "" {
		writeError(w, http.StatusBadRequest, "domain is only accepted on /legalquery/")
		return
	}
	s.answer(w, r, entity.Query{ThreadID: entity.ThreadID(req.ThreadID), Input: req.UserInput, Lang: req.Lang})
}

func (s *Server) handleLegalQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	domain, err := entity.ParseLegalDomain(req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("domain must be one of civil_law, corporate_law, property_law: %v", err))
		return
	}
	s.answer(w, r, entity.Query{ThreadID: entity.ThreadID(req.ThreadID), Input: req.UserInput, Lang: req.Lang, Domain: &domain})
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return nil, false
	}
	if strings.TrimSpace(req.UserInput) == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, q entity.Query) {
	answer, err := s.queries.Handle(r.Context(), q)
	switch {
	case errors.Is(err, gateway.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("Query failed", "thread", q.ThreadID.String(), "agent", q.Agent().String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusCreated, queryResponse{Response: answer.Text})
	}
}

func (s *Server) handleSetup(c entity.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.loader.Setup(r.Context(), c)
		if err != nil {
			s.logger.Error("Knowledge setup failed", "collection", string(c), "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("setup of %s failed: %v", c, err))
			return
		}
		writeJSON(w, http.StatusOK, toSetupResponse(*report))
	}
}

func (s *Server) handleSetupAll(w http.ResponseWriter, r *http.Request) {
	reports, err := s.loader.SetupAll(r.Context())
	if err != nil {
		s.logger.Error("Knowledge setup failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("setup failed: %v", err))
		return
	}
	resp := setupAllResponse{Status: "ok", Collections: make([]setupResponse, 0, len(reports))}
	for _, report := range reports {
		resp.Collections = append(resp.Collections, toSetupResponse(report))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toSetupResponse(report entity.IngestReport) setupResponse {
	return setupResponse{
		Status:     "ok",
		Collection: string(report.Collection),
		Files:      report.Files,
		Chunks:     report.Chunks,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
