package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nickberens360/portfolio-chat/internal/cache"
	"github.com/nickberens360/portfolio-chat/internal/config"
	"github.com/nickberens360/portfolio-chat/internal/illustrations"
	"github.com/nickberens360/portfolio-chat/internal/llm"
	"github.com/nickberens360/portfolio-chat/internal/metrics"
)

// imagePath prefixes catalog file names in /query responses so the frontend
// can load them directly.
const imagePath = "/illustrations/"

// specificImageTriggers route "show me drawings of X" questions to the
// illustration search instead of the model pool.
var specificImageTriggers = []string{
	"images of", "image of",
	"illustrations of", "illustration of",
	"drawings of", "drawing of",
	"art of",
}

// allImagePhrases map, when they match the whole question, to the catalog
// wildcard.
var allImagePhrases = []string{
	"show me all illustrations", "show all illustrations", "show me your illustrations",
	"show me all your art", "show me all images", "show me images", "show your art",
}

// Handlers carries the collaborators behind the HTTP endpoints. The catalog
// and cache may be nil when their initialization failed or was disabled.
type Handlers struct {
	logger  *slog.Logger
	cfg     config.Config
	orch    *llm.Orchestrator
	pool    *llm.Pool
	catalog *illustrations.Catalog
	cache   cache.ResponseCache
	metrics *metrics.Recorder
	started time.Time
	now     func() time.Time
}

// NewHandlers wires the endpoint collaborators.
func NewHandlers(logger *slog.Logger, cfg config.Config, orch *llm.Orchestrator, pool *llm.Pool, catalog *illustrations.Catalog, responseCache cache.ResponseCache, recorder *metrics.Recorder) *Handlers {
	return &Handlers{
		logger:  logger.With(slog.String("agent", "http")),
		cfg:     cfg,
		orch:    orch,
		pool:    pool,
		catalog: catalog,
		cache:   responseCache,
		metrics: recorder,
		started: time.Now(),
		now:     time.Now,
	}
}

type historyMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type queryRequest struct {
	Question    string           `json:"question"`
	ChatHistory []historyMessage `json:"chat_history"`
}

type queryResponse struct {
	Answer         string   `json:"answer"`
	Images         []string `json:"images,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
	LLMUsed        string   `json:"llm_used,omitempty"`
}

// handleQuery answers a chat question. Image-request phrasings are served
// from the illustration catalog; everything else goes through the fallback
// orchestrator, which never surfaces model failures as errors.
func (h *Handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := h.now()

	if term, ok := imageSearchTerm(req.Question); ok {
		h.serveImages(w, term, start)
		return
	}

	answer := h.orch.Answer(r.Context(), toChatHistory(req.ChatHistory), req.Question)
	elapsed := h.now().Sub(start)
	h.metrics.ObserveQuery(answer.ModelUsed, answer.FromCache, elapsed)

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:         answer.Text,
		ProcessingTime: elapsed.Seconds(),
		LLMUsed:        answer.ModelUsed,
	})
}

// serveImages answers the image-trigger path straight from the catalog.
func (h *Handlers) serveImages(w http.ResponseWriter, term string, start time.Time) {
	if h.catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "illustration catalog unavailable",
		})
		return
	}

	found := h.catalog.Search(term)
	elapsed := h.now().Sub(start).Seconds()

	if len(found) == 0 {
		answer := fmt.Sprintf("Sorry, I couldn't find any illustrations of '%s'. You can ask to see all of my art.", term)
		if term == illustrations.Wildcard {
			answer = "I couldn't find any illustrations at the moment."
		}
		writeJSON(w, http.StatusOK, queryResponse{Answer: answer, ProcessingTime: elapsed})
		return
	}

	urls := make([]string, len(found))
	for i, rec := range found {
		urls[i] = imagePath + rec.File
	}
	answer := fmt.Sprintf("Here are the illustrations I found for '%s':", term)
	if term == illustrations.Wildcard {
		answer = "Of course! Here are some of my illustrations:"
	}
	writeJSON(w, http.StatusOK, queryResponse{Answer: answer, Images: urls, ProcessingTime: elapsed})
}

// imageSearchTerm extracts the search term when the question is phrased as an
// image request. The whole-question phrases map to the catalog wildcard.
func imageSearchTerm(question string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))

	for _, trigger := range specificImageTriggers {
		idx := strings.Index(q, trigger)
		if idx < 0 {
			continue
		}
		term := strings.TrimSpace(q[idx+len(trigger):])
		if term != "" {
			return term, true
		}
	}

	for _, phrase := range allImagePhrases {
		if q == phrase {
			return illustrations.Wildcard, true
		}
	}
	return "", false
}

func toChatHistory(messages []historyMessage) []llm.ChatMessage {
	if len(messages) == 0 {
		return nil
	}
	history := make([]llm.ChatMessage, 0, len(messages))
	for _, m := range messages {
		role := llm.RoleUser
		switch strings.ToLower(m.Sender) {
		case "assistant", "bot":
			role = llm.RoleAssistant
		}
		history = append(history, llm.ChatMessage{Role: role, Text: m.Text})
	}
	return history
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports initialization state for the service's collaborators.
func (h *Handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	catalogRecords := 0
	if h.catalog != nil {
		catalogRecords = h.catalog.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"retriever_ready": h.orch.Ready(),
		"embedding_model": h.cfg.Retriever.EmbeddingModel,
		"catalog": map[string]any{
			"ready":   h.catalog != nil,
			"records": catalogRecords,
		},
		"cache": map[string]any{
			"enabled": h.cache != nil,
			"backend": h.cfg.Cache.Backend,
		},
		"chunking": map[string]int{
			"size":    h.cfg.Chunking.Size,
			"overlap": h.cfg.Chunking.Overlap,
		},
	})
}

// handleCacheStats reports response-cache occupancy.
func (h *Handlers) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	entries, err := h.cache.Size(r.Context())
	if err != nil {
		h.logger.Warn("cache size lookup failed", slog.Any("error", err))
		writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "error": "cache backend unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":     true,
		"entries":     entries,
		"max_entries": h.cfg.Cache.MaxEntries,
		"ttl_seconds": int64(h.cfg.Cache.TTL.Seconds()),
	})
}

// handleLLMStatus reports per-model availability from the pool.
func (h *Handlers) handleLLMStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"primary": h.cfg.LLM.Primary,
		"models":  h.pool.Status(),
	})
}

// handleIllustrationSearch exposes the catalog search directly.
func (h *Handlers) handleIllustrationSearch(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "illustration catalog unavailable",
		})
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "term is required"})
		return
	}
	results := h.catalog.Search(term)
	writeJSON(w, http.StatusOK, map[string]any{
		"term":    term,
		"results": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
