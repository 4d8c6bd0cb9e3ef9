package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/nickberens360/portfolio-chat/internal/cache"
	"github.com/nickberens360/portfolio-chat/internal/config"
	"github.com/nickberens360/portfolio-chat/internal/illustrations"
	"github.com/nickberens360/portfolio-chat/internal/llm"
	"github.com/nickberens360/portfolio-chat/internal/metrics"
)

type cannedProvider struct {
	name string
	text string
	err  error
}

func (p *cannedProvider) Name() string { return p.name }

func (p *cannedProvider) Complete(context.Context, string, []llm.ChatMessage, string) (string, error) {
	return p.text, p.err
}

type fixedRetriever struct{}

func (fixedRetriever) Retrieve(context.Context, string, int) ([]string, error) {
	return []string{"Nick builds Vue frontends."}, nil
}

type fixtureOptions struct {
	cfg       config.Config
	noCatalog bool
	providers map[string]*cannedProvider
}

func defaultFixtureOptions() fixtureOptions {
	return fixtureOptions{
		cfg: config.DefaultConfig(),
		providers: map[string]*cannedProvider{
			"openai":     {name: "openai", text: "Hi!"},
			"openrouter": {name: "openrouter", text: "backup"},
		},
	}
}

func newTestServer(t *testing.T, opts fixtureOptions) *httpexpect.Expect {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	factory := func(name string, _ config.ProviderConfig) (llm.Provider, error) {
		p, ok := opts.providers[name]
		if !ok {
			return nil, errors.New("key missing")
		}
		return p, nil
	}
	pool := llm.NewPool(logger, opts.cfg.LLM.Providers, factory)

	responseCache := cache.NewMemory(opts.cfg.Cache.TTL, opts.cfg.Cache.MaxEntries)
	orch, err := llm.NewOrchestrator(logger, pool, llm.Options{
		Cache:      responseCache,
		Retriever:  fixedRetriever{},
		Primary:    opts.cfg.LLM.Primary,
		Persona:    opts.cfg.LLM.Persona,
		MaxRetries: opts.cfg.LLM.MaxRetries,
		TopK:       opts.cfg.Retriever.TopK,
		Sleep:      func(time.Duration) {},
	})
	require.NoError(t, err)

	var catalog *illustrations.Catalog
	if !opts.noCatalog {
		records := []illustrations.Record{
			{Title: "Robot Uprising", Tags: []string{"robot", "scifi"}, File: "robot-uprising.png"},
			{Title: "Garden Cat", Tags: []string{"cat", "garden"}, File: "garden-cat.png"},
		}
		raw, err := json.Marshal(records)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "illustrations.json")
		require.NoError(t, os.WriteFile(path, raw, 0o600))
		catalog, err = illustrations.NewCatalog(path, opts.cfg.Search.ScoreThreshold, opts.cfg.Search.MaxResults)
		require.NoError(t, err)
	}

	handlers := NewHandlers(logger, opts.cfg, orch, pool, catalog, responseCache, metrics.NewRecorder(nil))
	srv := httptest.NewServer(NewRouter(handlers))
	t.Cleanup(srv.Close)

	return httpexpect.Default(t, srv.URL)
}

func TestQueryAnswersViaPrimaryModel(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.POST("/query").
		WithJSON(map[string]any{"question": "hello", "chat_history": []any{}}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().IsEqual("Hi!")
	body.Value("llm_used").String().IsEqual("openai")
	body.Value("processing_time").Number().Ge(0)
}

func TestQuerySecondCallServedFromCache(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	payload := map[string]any{"question": "hello"}
	expect.POST("/query").WithJSON(payload).Expect().Status(http.StatusOK)

	body := expect.POST("/query").WithJSON(payload).Expect().
		Status(http.StatusOK).JSON().Object()
	body.Value("answer").String().IsEqual("Hi!")
	body.Value("llm_used").String().IsEqual("cache")
}

func TestQueryWithHistoryMapsSenders(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.POST("/query").
		WithJSON(map[string]any{
			"question": "what does he do?",
			"chat_history": []map[string]string{
				{"sender": "user", "text": "tell me about Nick"},
				{"sender": "assistant", "text": "Nick is a developer."},
			},
		}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().IsEqual("Hi!")
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.POST("/query").
		WithJSON(map[string]any{"question": "   "}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("question is required")
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.POST("/query").
		WithHeader("Content-Type", "application/json").
		WithBytes([]byte("{not json")).
		Expect().
		Status(http.StatusBadRequest)
}

func TestQueryModelFailureStillReturnsOK(t *testing.T) {
	opts := defaultFixtureOptions()
	opts.providers = map[string]*cannedProvider{
		"openai":     {name: "openai", err: errors.New("boom")},
		"openrouter": {name: "openrouter", err: errors.New("boom too")},
	}
	expect := newTestServer(t, opts)

	body := expect.POST("/query").
		WithJSON(map[string]any{"question": "hello"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().Contains("technical difficulties")
	body.Value("llm_used").String().IsEqual("fallback")
}

func TestQueryImageTriggerReturnsCatalogMatches(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.POST("/query").
		WithJSON(map[string]any{"question": "Show me drawings of robots"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().Contains("robots")
	body.Value("images").Array().ContainsOnly("/illustrations/robot-uprising.png")
	body.NotContainsKey("llm_used")
}

func TestQueryImageTriggerNoMatches(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.POST("/query").
		WithJSON(map[string]any{"question": "images of xylophones"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().Contains("couldn't find any illustrations")
	body.NotContainsKey("images")
}

func TestQueryShowAllPhrase(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.POST("/query").
		WithJSON(map[string]any{"question": "show me all illustrations"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	body.Value("answer").String().Contains("Here are some of my illustrations")
	body.Value("images").Array().Length().IsEqual(2)
}

func TestQueryImageTriggerWithoutCatalog(t *testing.T) {
	opts := defaultFixtureOptions()
	opts.noCatalog = true
	expect := newTestServer(t, opts)

	expect.POST("/query").
		WithJSON(map[string]any{"question": "images of robots"}).
		Expect().
		Status(http.StatusServiceUnavailable)
}

func TestQueryRateLimit(t *testing.T) {
	opts := defaultFixtureOptions()
	opts.cfg.Server.RateLimit.RequestsPerMinute = 2
	expect := newTestServer(t, opts)

	payload := map[string]any{"question": "hello"}
	expect.POST("/query").WithJSON(payload).Expect().Status(http.StatusOK)
	expect.POST("/query").WithJSON(payload).Expect().Status(http.StatusOK)
	expect.POST("/query").WithJSON(payload).Expect().Status(http.StatusTooManyRequests)
}

func TestHealth(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.GET("/health").Expect().Status(http.StatusOK).
		JSON().Object().Value("status").String().IsEqual("ok")
}

func TestStatusReportsCollaborators(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.GET("/status").Expect().Status(http.StatusOK).JSON().Object()
	body.Value("retriever_ready").Boolean().IsTrue()
	body.Value("catalog").Object().Value("records").Number().IsEqual(2)
	body.Value("cache").Object().Value("enabled").Boolean().IsTrue()
	body.Value("chunking").Object().Value("size").Number().IsEqual(1000)
}

func TestCacheStats(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.POST("/query").WithJSON(map[string]any{"question": "hello"}).
		Expect().Status(http.StatusOK)

	body := expect.GET("/cache-stats").Expect().Status(http.StatusOK).JSON().Object()
	body.Value("enabled").Boolean().IsTrue()
	body.Value("entries").Number().IsEqual(1)
	body.Value("max_entries").Number().IsEqual(100)
}

func TestLLMStatus(t *testing.T) {
	opts := defaultFixtureOptions()
	delete(opts.providers, "openrouter")
	expect := newTestServer(t, opts)

	body := expect.GET("/llm-status").Expect().Status(http.StatusOK).JSON().Object()
	body.Value("primary").String().IsEqual("openai")
	models := body.Value("models").Object()
	models.Value("openai").Object().Value("available").Boolean().IsTrue()
	models.Value("openrouter").Object().Value("available").Boolean().IsFalse()
}

func TestIllustrationSearchEndpoint(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	body := expect.GET("/illustrations/search").WithQuery("term", "cat").
		Expect().Status(http.StatusOK).JSON().Object()
	body.Value("term").String().IsEqual("cat")
	body.Value("results").Array().Length().IsEqual(1)

	expect.GET("/illustrations/search").
		Expect().Status(http.StatusBadRequest)
}

func TestMetricsEndpoint(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.POST("/query").WithJSON(map[string]any{"question": "hello"}).
		Expect().Status(http.StatusOK)

	expect.GET("/metrics").Expect().Status(http.StatusOK).
		Body().Contains("portfolio_query_requests_total")
}

func TestCORSHeadersOnPreflight(t *testing.T) {
	expect := newTestServer(t, defaultFixtureOptions())

	expect.OPTIONS("/query").WithHeader("Origin", "https://nickberens.dev").
		Expect().Status(http.StatusOK).
		Header("Access-Control-Allow-Origin").IsEqual("https://nickberens.dev")
}
