package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/types"
)

// =============================================================================
// 🌐 路由注册
// =============================================================================

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// 项目管理
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	// 工作流
	mux.HandleFunc("POST /api/projects/{id}/run", s.handleRunWorkflow)
	mux.HandleFunc("GET /api/projects/{id}/status", s.handleProjectStatus)
	mux.HandleFunc("GET /api/projects/{id}/logs", s.handleActivityLogs)
	mux.HandleFunc("GET /api/projects/{id}/messages", s.handleAgentMessages)

	// 版本
	mux.HandleFunc("GET /api/projects/{id}/versions", s.handleListVersions)
	mux.HandleFunc("GET /api/projects/{id}/versions/latest", s.handleLatestVersion)
	mux.HandleFunc("GET /api/projects/{id}/versions/{number}", s.handleGetVersion)

	// 智能体
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}/conversations", s.handleAgentConversations)
	mux.HandleFunc("GET /api/agents/summary", s.handleCommunicationSummary)

	// 运维
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
}

// =============================================================================
// 📁 项目管理
// =============================================================================

type createProjectRequest struct {
	Topic          string `json:"topic"`
	ModelType      string `json:"model_type"`
	ResearchSource string `json:"research_source"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "invalid JSON body"))
		return
	}

	project, err := s.store.CreateProject(r.Context(), req.Topic, req.ModelType, req.ResearchSource)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.manager.Running(id) {
		writeError(w, types.NewError(types.ErrRunActive, "workflow is running for this project"))
		return
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// ⚙️ 工作流
// =============================================================================

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// 先确认项目存在，避免给不存在的项目起后台任务
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	if err := s.manager.Start(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"project_id": id,
		"status":     "started",
	})
}

func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":         project.ID,
		"status":             project.Status,
		"running":            s.manager.Running(id),
		"research_completed": project.ResearchCompleted,
		"writing_completed":  project.WritingCompleted,
		"review_completed":   project.ReviewCompleted,
		"updated_at":         project.UpdatedAt,
	})
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := s.activity.Since(r.PathValue("id"), since)
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) handleAgentMessages(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.store.ListAgentMessages(r.Context(), r.PathValue("id"), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// =============================================================================
// 📄 版本
// =============================================================================

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	contentType, err := parseContentType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := s.store.ListVersions(r.Context(), r.PathValue("id"), contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	contentType, err := parseContentType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	version, err := s.store.LatestVersion(r.Context(), r.PathValue("id"), contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	contentType, err := parseContentType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number < 1 {
		writeError(w, types.NewError(types.ErrInvalidRequest, "version number must be a positive integer"))
		return
	}
	version, err := s.store.GetVersion(r.Context(), r.PathValue("id"), contentType, number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// =============================================================================
// 🤖 智能体
// =============================================================================

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.bus.Agents()})
}

func (s *Server) handleAgentConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.bus.AgentConversations(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleCommunicationSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.bus.SummarizeCommunications(r.Context(),
		r.URL.Query().Get("agent"), r.URL.Query().Get("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// =============================================================================
// 🏥 运维
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.healthy(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// parseSince 解析 ?since= 查询参数（RFC3339），缺省为零值（返回全部）。
func parseSince(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, nil
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, types.NewError(types.ErrInvalidRequest, "since must be RFC3339 formatted")
	}
	return since, nil
}

// parseContentType 解析 ?type= 查询参数，缺省为 draft。
func parseContentType(r *http.Request) (types.ContentType, error) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return types.ContentDraft, nil
	}
	switch ct := types.ContentType(raw); ct {
	case types.ContentResearch, types.ContentDraft, types.ContentReview, types.ContentFinal:
		return ct, nil
	default:
		return "", types.NewError(types.ErrInvalidRequest, "unknown content type: "+raw)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError 将 types.Error 错误码映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest:
		status = http.StatusBadRequest
	case types.ErrProjectNotFound, types.ErrVersionNotFound, types.ErrUnknownAgent:
		status = http.StatusNotFound
	case types.ErrRunActive:
		status = http.StatusConflict
	case types.ErrAuthentication:
		status = http.StatusUnauthorized
	case types.ErrRateLimited:
		status = http.StatusTooManyRequests
	}

	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  string(types.GetErrorCode(err)),
	})
}
