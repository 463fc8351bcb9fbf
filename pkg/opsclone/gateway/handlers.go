package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
	"github.com/jholhewres/opsclone/pkg/opsclone/database"
	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/storage"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	documentSearchLimit = 20
	maxBatchSize        = 100
)

// notConfiguredMessage is returned to employees when no completion service
// is configured.
const notConfiguredMessage = "I apologize, but my AI capabilities are not configured. Please contact IT support to set up the API key."

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	var resp errorResponse
	resp.Error.Message = msg
	resp.Error.Code = code
	g.writeJSON(w, code, resp)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		g.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// store returns the document store or writes a 500 and returns nil.
func (g *Gateway) store(w http.ResponseWriter) *storage.Store {
	s, err := g.rt.RequireStore()
	if err != nil {
		g.writeError(w, "Database not configured", http.StatusInternalServerError)
		return nil
	}
	return s
}

// ---------- Health ----------

type healthResponse struct {
	Status        string           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Uptime        string           `json:"uptime"`
	Services      map[string]bool  `json:"services"`
	Configuration map[string]bool  `json:"configuration"`
	Database      *database.Report `json:"database,omitempty"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}

	dbOK := false
	var report *database.Report
	if g.rt.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		dbOK = g.rt.Store.Ping(ctx) == nil
		if g.rt.Hub != nil {
			rep := g.rt.Hub.Report(ctx)
			report = &rep
		}
		cancel()
	}
	aiOK := g.rt.LLM != nil && g.rt.LLM.Configured()
	webhookOK := g.rt.Dispatcher != nil && g.rt.Dispatcher.Configured()

	cfg := g.rt.Config
	fullText := g.rt.Store != nil && g.rt.Store.FullText()
	g.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    uptime,
		Services: map[string]bool{
			"ai":       aiOK,
			"database": dbOK,
			"webhook":  webhookOK,
		},
		Configuration: map[string]bool{
			"api_key":     cfg != nil && cfg.API.APIKey != "",
			"webhook_url": cfg != nil && cfg.Webhook.URL != "",
			"admin_token": g.config.AdminToken != "",
			"postgresql":  cfg != nil && cfg.Database.Backend == database.BackendPostgreSQL,
			"full_text":   fullText,
		},
		Database: report,
	})
}

// ---------- Chat ----------

type chatResponse struct {
	Success bool `json:"success"`
	*copilot.ResponseEnvelope
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if g.rt.LLM == nil || !g.rt.LLM.Configured() {
		g.writeError(w, notConfiguredMessage, http.StatusInternalServerError)
		return
	}

	var req copilot.ChatRequest
	if !g.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	g.trackSession(ctx, req)

	env, err := g.rt.Assistant.Respond(ctx, req)
	if err != nil {
		if errors.Is(err, copilot.ErrValidation) {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.logger.Error("chat failed", "user_id", req.UserID, "error", err)
		g.writeError(w, g.rt.Persona.TechnicalDifficulties, http.StatusInternalServerError)
		return
	}

	entry := storage.ConversationLog{
		UserID:      req.UserID,
		UserMessage: req.Message,
		AIResponse:  env.Message,
		Confidence:  env.Confidence,
		RequestMode: req.RequestMode,
		WebhookSent: env.RequestMode.WebhookSent,
	}
	if env.RequestMode.Task != nil {
		entry.TaskGenerated = g.rawJSON(env.RequestMode.Task)
	}
	if env.RequestMode.Delivery != nil {
		entry.WebhookResponse = g.rawJSON(env.RequestMode.Delivery)
	}
	g.logConversation(ctx, entry)

	g.writeJSON(w, http.StatusOK, chatResponse{Success: true, ResponseEnvelope: env})
}

// trackSession refreshes the employee session and counts the interaction.
// Failures are logged and never fail the request.
func (g *Gateway) trackSession(ctx context.Context, req copilot.ChatRequest) {
	if g.rt.Store == nil {
		return
	}
	logger := g.logger.With("user_id", req.UserID)

	if req.UserInfo != nil {
		_, err := g.rt.Store.UpdateUserSession(ctx, storage.UserSession{
			UserID:       req.UserID,
			EmployeeName: req.UserInfo.Name,
			Department:   req.UserInfo.Department,
			Role:         req.UserInfo.Role,
		})
		if err != nil {
			logger.Warn("updating user session failed", "error", err)
		}
	}

	if _, err := g.rt.Store.IncrementInteractionCount(ctx, req.UserID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			logger.Debug("no session to count interaction against")
			return
		}
		logger.Warn("incrementing interaction count failed", "error", err)
	}
}

// logConversation persists entry after the response has been written.
func (g *Gateway) logConversation(ctx context.Context, entry storage.ConversationLog) {
	if g.rt.Store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	g.background.Add(1)
	go func() {
		defer g.background.Done()
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := g.rt.Store.LogConversation(ctx, entry); err != nil {
			g.logger.Warn("logging conversation failed", "user_id", entry.UserID, "error", err)
		}
	}()
}

func (g *Gateway) rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Warn("encoding conversation field failed", "error", err)
		return nil
	}
	return data
}

type completeTaskResponse struct {
	Success bool `json:"success"`
	*copilot.CompleteTaskResult
}

func (g *Gateway) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req copilot.CompleteTaskRequest
	if !g.decode(w, r, &req) {
		return
	}

	res, err := g.rt.Assistant.CompleteTask(r.Context(), req)
	if err != nil {
		if errors.Is(err, copilot.ErrValidation) {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.logger.Error("complete task failed", "user_id", req.UserID, "error", err)
		g.writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	g.logConversation(r.Context(), storage.ConversationLog{
		UserID:          req.UserID,
		UserMessage:     req.OriginalMessage,
		AIResponse:      fmt.Sprintf("Task assigned to %s (%s)", req.AssigneeName, req.AssigneeEmail),
		RequestMode:     true,
		TaskGenerated:   g.rawJSON(res.Task),
		WebhookSent:     res.Delivery.Success,
		WebhookResponse: g.rawJSON(res.Delivery),
	})

	g.writeJSON(w, http.StatusOK, completeTaskResponse{Success: true, CompleteTaskResult: res})
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		g.writeError(w, "userId is required", http.StatusBadRequest)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			g.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	s := g.store(w)
	if s == nil {
		return
	}
	history, err := s.ConversationHistory(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error("conversation history failed", "user_id", userID, "error", err)
		g.writeError(w, "Failed to fetch conversation history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []storage.ConversationLog{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    history,
		"count":   len(history),
	})
}

// ---------- Documents ----------

func (g *Gateway) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s := g.store(w)
	if s == nil {
		return
	}
	q := r.URL.Query()

	var (
		docs []knowledge.Document
		err  error
	)
	if search := q.Get("search"); search != "" {
		docs, err = s.SearchDocuments(r.Context(), search, documentSearchLimit)
	} else {
		active := true
		docs, err = s.ListDocuments(r.Context(), storage.DocumentFilter{
			Type:        q.Get("type"),
			Department:  q.Get("department"),
			AccessLevel: q.Get("access_level"),
			Active:      &active,
		})
	}
	if err != nil {
		g.logger.Error("fetching documents failed", "error", err)
		g.writeError(w, "Failed to fetch documents", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    docs,
		"count":   len(docs),
	})
}

func (g *Gateway) handleStoreDocument(w http.ResponseWriter, r *http.Request) {
	var in storage.DocumentInput
	if !g.decode(w, r, &in) {
		return
	}
	s := g.store(w)
	if s == nil {
		return
	}

	doc, err := s.StoreDocument(r.Context(), in)
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.logger.Error("storing document failed", "error", err)
		g.writeError(w, "Failed to store document", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    doc,
		"message": "Document stored successfully",
	})
}

// ---------- Admin ----------

func (g *Gateway) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	tr, err := storage.ParseTimeRange(r.URL.Query().Get("timeRange"))
	if err != nil {
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s := g.store(w)
	if s == nil {
		return
	}
	a, err := s.Analytics(r.Context(), tr)
	if err != nil {
		g.logger.Error("analytics failed", "range", tr, "error", err)
		g.writeError(w, "Failed to fetch analytics", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"data":      a,
		"timeRange": tr,
		"timestamp": time.Now().UTC(),
	})
}

func (g *Gateway) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	d := g.rt.Dispatcher
	configured := d != nil && d.ValidateConfiguration()

	result := webhook.NotConfigured()
	if configured {
		from := ""
		if g.rt.Persona != nil {
			from = g.rt.Persona.Sender
		}
		result = d.Test(r.Context(), from)
	}

	urlState := "[NOT SET]"
	if g.rt.Config != nil && g.rt.Config.Webhook.URL != "" {
		urlState = "[CONFIGURED]"
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"webhookTest": result,
		"configuration": map[string]any{
			"webhookConfigured": configured,
			"webhookUrl":        urlState,
		},
		"timestamp": time.Now().UTC(),
	})
}

type batchRequest struct {
	Tasks []tasks.TaskRecord `json:"tasks"`
}

func (g *Gateway) handleWebhookBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !g.decode(w, r, &req) {
		return
	}
	if len(req.Tasks) == 0 {
		g.writeError(w, "tasks is required", http.StatusBadRequest)
		return
	}
	if len(req.Tasks) > maxBatchSize {
		g.writeError(w, fmt.Sprintf("at most %d tasks per batch", maxBatchSize), http.StatusBadRequest)
		return
	}
	for i, t := range req.Tasks {
		if err := tasks.Validate(t); err != nil {
			g.writeError(w, fmt.Sprintf("tasks[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
	}

	d := g.rt.Dispatcher
	if d == nil || !d.Configured() {
		g.writeError(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}
	res := d.SendBatch(r.Context(), req.Tasks)
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Failed == 0,
		"data":    res,
	})
}
