package executor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"intent-gateway/internal/common/config"
	"intent-gateway/internal/common/httpclient"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/template"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastResilience() config.ResilienceConfig {
	return config.ResilienceConfig{
		CallTimeout:      1000,
		MaxRetries:       3,
		BackoffBase:      1,
		BreakerThreshold: 5,
		BreakerCooldown:  60000,
	}
}

// scriptedDriver fails a fixed number of times before succeeding.
type scriptedDriver struct {
	name      string
	failures  int
	failWith  error
	rows      []map[string]interface{}
	callCount int
}

func (d *scriptedDriver) Name() string { return d.name }

func (d *scriptedDriver) Execute(_ context.Context, _ *template.Template, _ map[string]interface{}) ([]map[string]interface{}, error) {
	d.callCount++
	if d.callCount <= d.failures {
		return nil, d.failWith
	}
	return d.rows, nil
}

func sqlTemplate() *template.Template {
	return &template.Template{
		ID:   "orders",
		Kind: template.KindSQL,
		SQL:  "SELECT id, status FROM orders WHERE customer_name LIKE :name",
	}
}

// ==========================
// 1. Retry policy
// ==========================

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	driver := &scriptedDriver{name: "ds", rows: []map[string]interface{}{{"id": 1}}}
	e := NewExecutor(driver, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), map[string]interface{}{"name": "%m%"})

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.AttemptCount)
	assert.Len(t, outcome.Rows, 1)
}

func TestExecute_EmptyResultIsNotAnError(t *testing.T) {
	driver := &scriptedDriver{name: "ds"}
	e := NewExecutor(driver, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), nil)

	assert.Equal(t, StatusEmpty, outcome.Status)
	assert.Equal(t, ErrorKind(""), outcome.ErrorKind)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	driver := &scriptedDriver{
		name:     "ds",
		failures: 2,
		failWith: &httpStatusError{status: 503},
		rows:     []map[string]interface{}{{"id": 1}},
	}
	e := NewExecutor(driver, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), nil)

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.AttemptCount)
	assert.Equal(t, 3, driver.callCount)
}

func TestExecute_PermanentErrorNotRetried(t *testing.T) {
	driver := &scriptedDriver{
		name:     "ds",
		failures: 10,
		failWith: errors.New("syntax error"),
	}
	e := NewExecutor(driver, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), nil)

	assert.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, KindPermanent, outcome.ErrorKind)
	assert.Equal(t, 1, driver.callCount, "permanent failures stop immediately")
}

func TestExecute_RetriesExhausted(t *testing.T) {
	driver := &scriptedDriver{
		name:     "ds",
		failures: 10,
		failWith: &httpStatusError{status: 502},
	}
	e := NewExecutor(driver, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), nil)

	assert.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, KindTransient, outcome.ErrorKind)
	assert.Equal(t, 3, outcome.AttemptCount)
}

func TestExecute_UnregisteredKind(t *testing.T) {
	e := NewExecutor(nil, nil, nil, fastResilience(), logger.NewTestLogger(t))

	outcome := e.Execute(context.Background(), sqlTemplate(), nil)
	assert.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, KindPermanent, outcome.ErrorKind)
}

// ==========================
// 2. Circuit breaker integration
// ==========================

func TestExecute_BreakerOpensAndShortCircuits(t *testing.T) {
	cfg := fastResilience()
	cfg.MaxRetries = 1
	cfg.BreakerThreshold = 3

	driver := &scriptedDriver{
		name:     "flaky",
		failures: 100,
		failWith: &httpStatusError{status: 500},
	}
	e := NewExecutor(driver, nil, nil, cfg, logger.NewTestLogger(t))
	tmpl := sqlTemplate()

	for i := 0; i < 3; i++ {
		outcome := e.Execute(context.Background(), tmpl, nil)
		assert.Equal(t, StatusError, outcome.Status)
	}
	assert.Equal(t, 3, driver.callCount)

	// Breaker is now open: the driver is not called again.
	outcome := e.Execute(context.Background(), tmpl, nil)
	assert.Equal(t, KindCircuitOpen, outcome.ErrorKind)
	assert.Equal(t, 3, driver.callCount)
}

func TestExecute_BindingFailureDoesNotTripBreaker(t *testing.T) {
	cfg := fastResilience()
	cfg.BreakerThreshold = 1

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := NewExecutor(NewSQLDriver(db), nil, nil, cfg, logger.NewTestLogger(t))

	// Missing value: binding fails before any datasource call.
	outcome := e.Execute(context.Background(), sqlTemplate(), map[string]interface{}{})
	assert.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, KindPermanent, outcome.ErrorKind)
	assert.Equal(t, BreakerClosed, e.breakers["postgres"].State())
}

// ==========================
// 3. SQL driver
// ==========================

func TestSQLDriver_Execute(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, status FROM orders WHERE customer_name LIKE $1").
		WithArgs("%Maria%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(1, []byte("pending")).
			AddRow(2, []byte("shipped")))

	driver := NewSQLDriver(db)
	rows, err := driver.Execute(context.Background(), sqlTemplate(), map[string]interface{}{"name": "%Maria%"})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "pending", rows[0]["status"], "byte slices come back as strings")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDriver_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, status FROM orders WHERE customer_name LIKE $1").
		WillReturnError(errors.New("connection reset"))

	driver := NewSQLDriver(db)
	_, err = driver.Execute(context.Background(), sqlTemplate(), map[string]interface{}{"name": "x"})
	assert.Error(t, err)
}

// ==========================
// 4. HTTP driver
// ==========================

func TestHTTPDriver_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/7/status", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{"results": [{"order_id": 7, "status": "shipped"}]}`))
	}))
	defer server.Close()

	tmpl := &template.Template{
		ID:   "order_status",
		Kind: template.KindHTTP,
		Request: &template.RequestSpec{
			Method: "GET",
			Path:   "/orders/{order_id}/status",
		},
		Parameters: []template.Parameter{
			{Name: "order_id", Type: template.TypeInteger, Location: template.LocationPath},
		},
	}

	driver := NewHTTPDriver(httpclient.NewClient(0), config.HTTPSourceConfig{
		BaseURL: server.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
	})

	rows, err := driver.Execute(context.Background(), tmpl, map[string]interface{}{"order_id": int64(7)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "shipped", rows[0]["status"])
}

func TestHTTPDriver_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tmpl := &template.Template{
		ID:      "t",
		Kind:    template.KindHTTP,
		Request: &template.RequestSpec{Method: "GET", Path: "/x"},
	}
	driver := NewHTTPDriver(httpclient.NewClient(0), config.HTTPSourceConfig{BaseURL: server.URL})

	_, err := driver.Execute(context.Background(), tmpl, nil)
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestParseHTTPRows(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"bare array", `[{"a":1},{"a":2}]`, 2},
		{"wrapped results", `{"results":[{"a":1}]}`, 1},
		{"wrapped data", `{"data":[{"a":1},{"a":2},{"a":3}]}`, 3},
		{"single object", `{"a":1}`, 1},
		{"empty body", ``, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := parseHTTPRows([]byte(tt.data))
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

// ==========================
// 5. Elasticsearch response parsing
// ==========================

func TestParseESHits(t *testing.T) {
	data := []byte(`{
		"hits": {
			"hits": [
				{"_id": "p1", "_score": 1.2, "_source": {"name": "lamp", "price": 30}},
				{"_id": "p2", "_score": 0.8, "_source": {"name": "desk lamp", "price": 45}}
			]
		}
	}`)

	rows, err := parseESHits(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "lamp", rows[0]["name"])
	assert.Equal(t, "p1", rows[0]["_id"])
	assert.Equal(t, 1.2, rows[0]["_score"])
}

func TestParseESHits_NoHits(t *testing.T) {
	rows, err := parseESHits([]byte(`{"hits": {"hits": []}}`))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
