// Package executor runs bound templates against their datasource under the
// fault-tolerance policy: per-call timeout, bounded retries with exponential
// backoff and a per-datasource circuit breaker.
package executor

import (
	"context"
	"errors"
	"time"

	"intent-gateway/internal/common/config"
	stderrors "intent-gateway/internal/common/errors"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/common/metrics"
	"intent-gateway/internal/template"
)

// Status is the terminal state of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

// Outcome is the result of executing one template.
type Outcome struct {
	Status       Status
	Rows         []map[string]interface{}
	ErrorKind    ErrorKind
	AttemptCount int
}

// Driver executes one template kind against its datasource.
type Driver interface {
	Name() string
	Execute(ctx context.Context, tmpl *template.Template, params map[string]interface{}) ([]map[string]interface{}, error)
}

// Executor dispatches templates to drivers by kind and owns one breaker per
// datasource. Safe for concurrent use.
type Executor struct {
	drivers  map[template.Kind]Driver
	breakers map[string]*Breaker
	cfg      config.ResilienceConfig
	logger   logger.Logger
}

// NewExecutor wires the configured drivers. A nil driver leaves its kind
// unregistered; templates of that kind fail with a permanent error.
func NewExecutor(sqlDriver, httpDriver, esDriver Driver, cfg config.ResilienceConfig, log logger.Logger) *Executor {
	e := &Executor{
		drivers:  map[template.Kind]Driver{},
		breakers: map[string]*Breaker{},
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "executor"}),
	}

	register := func(kind template.Kind, d Driver) {
		if d == nil {
			return
		}
		e.drivers[kind] = d
		cooldown := time.Duration(cfg.BreakerCooldown) * time.Millisecond
		e.breakers[d.Name()] = NewBreaker(d.Name(), cfg.BreakerThreshold, cooldown, log)
	}
	register(template.KindSQL, sqlDriver)
	register(template.KindHTTP, httpDriver)
	register(template.KindElasticsearch, esDriver)

	return e
}

// Execute runs the template with retries. The returned outcome always has a
// terminal status; driver errors never escape as Go errors, the engine works
// off the outcome alone.
func (e *Executor) Execute(ctx context.Context, tmpl *template.Template, params map[string]interface{}) *Outcome {
	driver, ok := e.drivers[tmpl.Kind]
	if !ok {
		e.logger.Error("No driver registered for template kind", map[string]interface{}{
			"templateId": tmpl.ID,
			"kind":       string(tmpl.Kind),
		})
		return &Outcome{Status: StatusError, ErrorKind: KindPermanent}
	}

	breaker := e.breakers[driver.Name()]
	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	callTimeout := time.Duration(e.cfg.CallTimeout) * time.Millisecond
	backoffBase := time.Duration(e.cfg.BackoffBase) * time.Millisecond
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}

	var lastKind ErrorKind
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if !breaker.Allow() {
			metrics.ExecutionAttempts.WithLabelValues(driver.Name(), "circuit_open").Inc()
			return &Outcome{Status: StatusError, ErrorKind: KindCircuitOpen, AttemptCount: attempt - 1}
		}

		rows, err := e.callDriver(ctx, driver, tmpl, params, callTimeout)
		if err == nil {
			breaker.RecordSuccess()
			metrics.ExecutionAttempts.WithLabelValues(driver.Name(), "success").Inc()
			if len(rows) == 0 {
				return &Outcome{Status: StatusEmpty, AttemptCount: attempt}
			}
			return &Outcome{Status: StatusSuccess, Rows: rows, AttemptCount: attempt}
		}

		// A binding failure is a template or extraction problem, not a
		// datasource fault; it must not trip the breaker.
		var stdErr *stderrors.StandardError
		if errors.As(err, &stdErr) && stdErr.Code == stderrors.ErrCodeBindingFailed {
			metrics.ExecutionAttempts.WithLabelValues(driver.Name(), "binding_failed").Inc()
			return &Outcome{Status: StatusError, ErrorKind: KindPermanent, AttemptCount: attempt}
		}

		lastKind = Classify(err)
		breaker.RecordFailure()
		metrics.ExecutionAttempts.WithLabelValues(driver.Name(), string(lastKind)).Inc()
		e.logger.Warn("Datasource execution attempt failed", map[string]interface{}{
			"templateId": tmpl.ID,
			"datasource": driver.Name(),
			"attempt":    attempt,
			"errorKind":  string(lastKind),
			"error":      err.Error(),
		})

		if !lastKind.Retryable() || attempt == maxRetries {
			return &Outcome{Status: StatusError, ErrorKind: lastKind, AttemptCount: attempt}
		}

		backoff := backoffBase * (1 << (attempt - 1))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &Outcome{Status: StatusError, ErrorKind: KindPermanent, AttemptCount: attempt}
		}
	}

	return &Outcome{Status: StatusError, ErrorKind: lastKind, AttemptCount: maxRetries}
}

func (e *Executor) callDriver(ctx context.Context, driver Driver, tmpl *template.Template, params map[string]interface{}, timeout time.Duration) ([]map[string]interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return driver.Execute(ctx, tmpl, params)
}
