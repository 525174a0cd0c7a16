package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"intent-gateway/internal/common/config"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/executor"
	"intent-gateway/internal/extractor"
	"intent-gateway/internal/formatter"
	"intent-gateway/internal/matcher"
	"intent-gateway/internal/rerank"
	"intent-gateway/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorEmbedder maps substring keys to fixed vectors. Keys are checked in
// sorted order so the fake is deterministic.
type vectorEmbedder struct {
	vectors map[string][]float64
	fail    bool
}

func (f *vectorEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, errors.New("embedding service down")
	}
	keys := make([]string, 0, len(f.vectors))
	for key := range f.vectors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(text, key) {
			return f.vectors[key], nil
		}
	}
	return []float64{0, 0, 1}, nil
}

// cannedCompleter returns the same response for every call.
type cannedCompleter struct {
	response string
	err      error
}

func (c *cannedCompleter) Complete(_ context.Context, _ string) (string, error) {
	return c.response, c.err
}

// stubDriver runs templates against an in-memory row source.
type stubDriver struct {
	rows      map[string][]map[string]interface{}
	errs      map[string]error
	callCount int
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Execute(_ context.Context, tmpl *template.Template, _ map[string]interface{}) ([]map[string]interface{}, error) {
	d.callCount++
	if err, ok := d.errs[tmpl.ID]; ok {
		return nil, err
	}
	return d.rows[tmpl.ID], nil
}

type fixture struct {
	engine   *Engine
	embedder *vectorEmbedder
	driver   *stubDriver
}

func newFixture(t *testing.T, completer *cannedCompleter, driver *stubDriver) *fixture {
	t.Helper()

	store := template.NewStore(template.NewTemplateSet([]template.Template{
		{
			ID:          "orders_by_customer",
			Kind:        template.KindSQL,
			Description: "Find orders placed by a customer",
			SQL:         "SELECT id, status FROM orders WHERE customer_name LIKE :customer_name",
			Parameters: []template.Parameter{
				{Name: "customer_name", Type: template.TypeString, Required: true, SemanticType: "person_name"},
			},
			NLExamples: []string{"What did Maria order?"},
			ResultMapping: template.ResultMapping{
				ContentTemplate: "Order {id}: {status}",
				EmptyMessage:    "No orders found for that customer.",
			},
		},
		{
			ID:          "product_lookup",
			Kind:        template.KindSQL,
			Description: "Look up product details by name",
			SQL:         "SELECT name, price FROM products WHERE name LIKE :product_name",
			Parameters: []template.Parameter{
				{Name: "product_name", Type: template.TypeString, Required: true},
			},
			NLExamples: []string{"How much is the desk lamp?"},
		},
	}))

	embedder := &vectorEmbedder{vectors: map[string][]float64{
		"orders placed": {1, 0, 0},
		"product":       {0, 1, 0},
		"order":         {0.95, 0.05, 0},
		"lamp":          {0.05, 0.95, 0},
	}}

	log := logger.NewTestLogger(t)
	m := matcher.NewMatcher(embedder, store, nil, nil, log)
	require.NoError(t, m.BuildIndex(context.Background()))

	exec := executor.NewExecutor(driver, nil, nil, config.ResilienceConfig{
		CallTimeout: 1000,
		MaxRetries:  2,
		BackoffBase: 1,
	}, log)

	eng := NewEngine(
		store,
		m,
		rerank.NewReranker(nil, rerank.DefaultBoostConfig(), log),
		extractor.NewExtractor(completer, log),
		exec,
		formatter.NewFormatter(),
		config.EngineConfig{
			TopK:                 5,
			ConfidenceThreshold:  0.6,
			MaxCandidateAttempts: 3,
		},
		nil,
		log,
	)

	return &fixture{engine: eng, embedder: embedder, driver: driver}
}

func floatPtr(v float64) *float64 { return &v }

// ==========================
// 1. Happy path
// ==========================

func TestAnswer_HappyPath(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria Garcia", "product_name": null}`},
		&stubDriver{rows: map[string][]map[string]interface{}{
			"orders_by_customer": {
				{"id": 7, "status": "shipped"},
				{"id": 9, "status": "pending"},
			},
		}},
	)

	result, err := fx.engine.Answer(context.Background(), "What did Maria Garcia order?", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, result.Outcome)
	assert.Equal(t, "orders_by_customer", result.TemplateID)
	assert.NotEmpty(t, result.QueryID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Order 7: shipped", result.Items[0].Content)

	meta := result.Items[0].Metadata
	assert.Equal(t, "orders_by_customer", meta["template_id"])
	params := meta["parameters"].(map[string]interface{})
	cn := params["customer_name"].(map[string]interface{})
	assert.Equal(t, "%Maria Garcia%", cn["value"], "LIKE parameter is wildcard wrapped")
}

func TestAnswer_EmptyResultIsAnswered(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Nobody Nowhere"}`},
		&stubDriver{}, // no rows for any template
	)

	result, err := fx.engine.Answer(context.Background(), "What did Nobody Nowhere order?", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, result.Outcome)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "No orders found for that customer.", result.Items[0].Content)
	assert.Equal(t, 0, result.Items[0].Metadata["row_count"])
}

// ==========================
// 2. No confident match
// ==========================

func TestAnswer_NoConfidentMatch(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{}`},
		&stubDriver{},
	)

	// Nothing in the library is about weather; the query vector lands far
	// from both templates.
	result, err := fx.engine.Answer(context.Background(), "Will it rain tomorrow?", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoConfidentMatch, result.Outcome)
	assert.Empty(t, result.Items)
	assert.Less(t, result.BestScore, 0.6)
	assert.Equal(t, 0, fx.driver.callCount, "nothing executes without a confident match")
}

func TestAnswer_ThresholdOverride(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria"}`},
		&stubDriver{rows: map[string][]map[string]interface{}{
			"orders_by_customer": {{"id": 1, "status": "x"}},
		}},
	)

	// The weather query sits at similarity 0.5 against both templates:
	// rejected at the default threshold, accepted when the caller lowers it.
	query := "Will it rain tomorrow?"

	result, err := fx.engine.Answer(context.Background(), query, Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoConfidentMatch, result.Outcome)

	result, err = fx.engine.Answer(context.Background(), query, Options{ConfidenceThreshold: floatPtr(0.2)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, result.Outcome)
}

func TestAnswer_ExplicitZeroThresholdAcceptsAnything(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria"}`},
		&stubDriver{rows: map[string][]map[string]interface{}{
			"orders_by_customer": {{"id": 1, "status": "shipped"}},
		}},
	)

	// An explicit zero is an override, not "use the default": the weather
	// query clears a zero threshold even though the default rejects it.
	query := "Will it rain tomorrow?"

	result, err := fx.engine.Answer(context.Background(), query, Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoConfidentMatch, result.Outcome)

	result, err = fx.engine.Answer(context.Background(), query, Options{ConfidenceThreshold: floatPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, result.Outcome)
}

// ==========================
// 3. Insufficient information
// ==========================

func TestAnswer_InsufficientInformation(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": null, "product_name": null}`},
		&stubDriver{},
	)

	result, err := fx.engine.Answer(context.Background(), "What did the customer order?", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInsufficientInformation, result.Outcome)
	assert.Equal(t, []string{"customer_name"}, result.MissingParams)
	assert.Equal(t, 0, fx.driver.callCount)
}

// ==========================
// 4. Service degradation
// ==========================

func TestAnswer_CompletionServiceDown(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{err: errors.New("completion unavailable")},
		&stubDriver{},
	)

	result, err := fx.engine.Answer(context.Background(), "What did Maria order?", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeServiceDegraded, result.Outcome)
	// The raw provider error stays out of the result.
	for _, item := range result.Items {
		assert.NotContains(t, item.Content, "unavailable")
	}
}

func TestAnswer_DatasourceDown(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria"}`},
		&stubDriver{errs: map[string]error{
			"orders_by_customer": context.DeadlineExceeded,
		}},
	)

	result, err := fx.engine.Answer(context.Background(), "What did Maria order?", Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeServiceDegraded, result.Outcome)
}

func TestAnswer_EmbeddingDownStillAnswersLexically(t *testing.T) {
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria"}`},
		&stubDriver{rows: map[string][]map[string]interface{}{
			"orders_by_customer": {{"id": 1, "status": "shipped"}},
		}},
	)
	fx.embedder.fail = true

	// Lexical overlap with "What did Maria order?" carries the match.
	result, err := fx.engine.Answer(context.Background(), "what did maria order", Options{
		ConfidenceThreshold: floatPtr(0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, result.Outcome)
	assert.Equal(t, "orders_by_customer", result.TemplateID)
}

// ==========================
// 5. Candidate fall-through
// ==========================

func TestAnswer_FallsThroughToNextCandidate(t *testing.T) {
	// The top template's datasource rejects the query permanently; the
	// runner-up answers it.
	fx := newFixture(t,
		&cannedCompleter{response: `{"customer_name": "Maria", "product_name": "lamp"}`},
		&stubDriver{
			errs: map[string]error{
				"orders_by_customer": errors.New("relation does not exist"),
			},
			rows: map[string][]map[string]interface{}{
				"product_lookup": {{"name": "desk lamp", "price": 45}},
			},
		},
	)

	result, err := fx.engine.Answer(context.Background(), "What did Maria order?", Options{
		ConfidenceThreshold: floatPtr(0.3),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, result.Outcome)
	assert.Equal(t, "product_lookup", result.TemplateID)
}

// ==========================
// 6. Input validation
// ==========================

func TestAnswer_EmptyQuery(t *testing.T) {
	fx := newFixture(t, &cannedCompleter{response: "{}"}, &stubDriver{})

	_, err := fx.engine.Answer(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnswer_EmptyIndex(t *testing.T) {
	log := logger.NewTestLogger(t)
	store := template.NewStore(nil)
	m := matcher.NewMatcher(&vectorEmbedder{}, store, nil, nil, log)

	eng := NewEngine(
		store, m,
		rerank.NewReranker(nil, rerank.DefaultBoostConfig(), log),
		extractor.NewExtractor(&cannedCompleter{response: "{}"}, log),
		executor.NewExecutor(&stubDriver{}, nil, nil, config.ResilienceConfig{MaxRetries: 1}, log),
		formatter.NewFormatter(),
		config.EngineConfig{TopK: 5, ConfidenceThreshold: 0.4},
		nil, log,
	)

	_, err := eng.Answer(context.Background(), "anything", Options{})
	assert.ErrorIs(t, err, matcher.ErrEmptyIndex)
}
