package httpapi

import (
	"net/http"

	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/rag"
)

type permissionsResponse struct {
	Roots []string `json:"roots"`
}

func (h *Handler) handleRAGPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Roots: h.cfg.RAG.ListPermissions()})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (h *Handler) handleRAGPermissionsGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req pathRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	roots, err := h.cfg.RAG.GrantPermission(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Roots: roots})
}

func (h *Handler) handleRAGPermissionsRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req pathRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	roots, err := h.cfg.RAG.RevokePermission(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Roots: roots})
}

type setPermissionsRequest struct {
	Roots []string `json:"roots"`
}

func (h *Handler) handleRAGPermissionsSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req setPermissionsRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	roots, err := h.cfg.RAG.SetPermissions(req.Roots)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Roots: roots})
}

type drivesResponse struct {
	Drives []string `json:"drives"`
}

func (h *Handler) handleRAGDrives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	writeJSON(w, http.StatusOK, drivesResponse{Drives: h.cfg.RAG.ListAvailableDrives()})
}

type listDirsResponse struct {
	Subdirs []string `json:"subdirs"`
}

func (h *Handler) handleRAGListDirs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	path := r.URL.Query().Get("path")
	subdirs, err := h.cfg.RAG.ListSubdirs(path, 200)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listDirsResponse{Subdirs: subdirs})
}

func (h *Handler) handleRAGStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.RAG.Status())
}

type indexRequest struct {
	Roots    []string `json:"roots,omitempty"`
	MaxFiles int      `json:"max_files,omitempty"`
}

func (h *Handler) handleRAGIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req indexRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.cfg.RAG.RebuildIndex(req.Roots, req.MaxFiles)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.SetRAGIndexFiles(result.IndexMeta.FilesIndexed)
	}
	writeJSON(w, http.StatusOK, result.Status)
}

type searchRequest struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k,omitempty"`
	Roots []string `json:"roots,omitempty"`
}

type hitsResponse struct {
	Hits []hitView `json:"hits"`
}

type hitView struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

func (h *Handler) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req searchRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 8
	}
	hits, err := h.cfg.RAG.Search(req.Query, topK, req.Roots)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordRAGSearch("search")
	}
	writeJSON(w, http.StatusOK, hitsToResponse(hits))
}

// handleRAGFindFiles is a SPEC_FULL addition exposing the filename-matching
// heuristic §4.8 uses internally as its own endpoint, for clients that want
// to run a file search without going through the chat orchestrator.
func (h *Handler) handleRAGFindFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	var req searchRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query == "" {
		writeError(w, localflowerr.InvalidInput("query is required"))
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	hits, err := h.cfg.RAG.FindFiles(req.Query, topK, req.Roots, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordRAGSearch("find_files")
	}
	writeJSON(w, http.StatusOK, hitsToResponse(hits))
}

func hitsToResponse(hits []rag.Hit) hitsResponse {
	resp := hitsResponse{}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, hitView{Path: h.Path, Score: h.Score, Snippet: h.Snippet})
	}
	return resp
}
