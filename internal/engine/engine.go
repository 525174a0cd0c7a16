// Package engine runs the full question-answering pipeline: match, rerank,
// gate, extract, execute, format.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"intent-gateway/internal/common/config"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/common/metrics"
	"intent-gateway/internal/common/observability"
	"intent-gateway/internal/executor"
	"intent-gateway/internal/extractor"
	"intent-gateway/internal/formatter"
	"intent-gateway/internal/matcher"
	"intent-gateway/internal/rerank"
	"intent-gateway/internal/template"

	"github.com/google/uuid"
)

// Outcome is the user-facing classification of a query's result.
type Outcome string

const (
	OutcomeAnswered                Outcome = "answered"
	OutcomeNoConfidentMatch        Outcome = "no_confident_match"
	OutcomeInsufficientInformation Outcome = "insufficient_information"
	OutcomeServiceDegraded         Outcome = "service_degraded"
)

var ErrEmptyQuery = errors.New("EMPTY_QUERY")

// Options overrides per query. A zero TopK and nil threshold fields fall
// back to the configured defaults; an explicit zero threshold or margin is
// honored.
type Options struct {
	TopK                int
	ConfidenceThreshold *float64
	MinMargin           *float64
}

// AnswerResult is the result of one Answer call. Items is populated only for
// OutcomeAnswered; the other outcomes carry diagnostic fields instead. No
// raw driver or provider error text ever appears here.
type AnswerResult struct {
	QueryID       string
	Outcome       Outcome
	Items         []formatter.ContextItem
	TemplateID    string
	Similarity    float64
	MissingParams []string
	BestScore     float64
	Duration      time.Duration
}

// Engine owns no per-query state; concurrent Answer calls are safe.
type Engine struct {
	store     *template.Store
	matcher   *matcher.Matcher
	reranker  *rerank.Reranker
	extractor *extractor.Extractor
	executor  *executor.Executor
	formatter *formatter.Formatter
	cfg       config.EngineConfig
	obs       *observability.Observability
	logger    logger.Logger
}

// NewEngine wires the pipeline. obs may be nil.
func NewEngine(
	store *template.Store,
	m *matcher.Matcher,
	r *rerank.Reranker,
	ext *extractor.Extractor,
	exec *executor.Executor,
	f *formatter.Formatter,
	cfg config.EngineConfig,
	obs *observability.Observability,
	log logger.Logger,
) *Engine {
	return &Engine{
		store:     store,
		matcher:   m,
		reranker:  r,
		extractor: ext,
		executor:  exec,
		formatter: f,
		cfg:       cfg,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "engine"}),
	}
}

// Answer resolves one natural-language question end to end. Pipeline and
// service failures come back as typed outcomes, not errors; the error return
// covers only misuse (empty query) and an unbuilt index.
func (e *Engine) Answer(ctx context.Context, query string, opts Options) (*AnswerResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	queryID := uuid.NewString()
	start := time.Now()
	log := e.logger.WithFields(map[string]interface{}{"queryId": queryID})
	log.Info("Answering query", map[string]interface{}{"query": query})

	result, err := e.answer(ctx, query, opts, log)
	if err != nil {
		return nil, err
	}

	result.QueryID = queryID
	result.Duration = time.Since(start)

	metrics.QueriesTotal.WithLabelValues(string(result.Outcome)).Inc()
	if e.obs != nil {
		e.obs.RecordQueryAnswered(ctx, string(result.Outcome))
		e.obs.RecordQueryDuration(ctx, result.Duration, string(result.Outcome))
	}
	log.Info("Query finished", map[string]interface{}{
		"outcome":    string(result.Outcome),
		"templateId": result.TemplateID,
		"durationMs": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (e *Engine) answer(ctx context.Context, query string, opts Options, log logger.Logger) (*AnswerResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	threshold := e.cfg.ConfidenceThreshold
	if opts.ConfidenceThreshold != nil {
		threshold = *opts.ConfidenceThreshold
	}
	minMargin := e.cfg.MinMargin
	if opts.MinMargin != nil {
		minMargin = *opts.MinMargin
	}

	// Match.
	matchStart := time.Now()
	candidates, err := e.matcher.FindCandidates(ctx, query, topK)
	metrics.StageDuration.WithLabelValues("match").Observe(time.Since(matchStart).Seconds())
	if err != nil {
		return nil, err
	}

	// Rerank and gate.
	rerankStart := time.Now()
	set := e.store.Snapshot()
	ranked := e.reranker.Rerank(query, candidates, set)
	eligible, gateErr := e.reranker.Gate(ranked, threshold, minMargin)
	metrics.StageDuration.WithLabelValues("rerank").Observe(time.Since(rerankStart).Seconds())

	if gateErr != nil {
		var noMatch *rerank.NoConfidentMatchError
		if errors.As(gateErr, &noMatch) {
			log.Info("No confident match", map[string]interface{}{
				"bestScore": noMatch.BestScore,
				"bestId":    noMatch.BestID,
			})
			return &AnswerResult{
				Outcome:   OutcomeNoConfidentMatch,
				BestScore: noMatch.BestScore,
			}, nil
		}
		return nil, gateErr
	}

	maxAttempts := e.cfg.MaxCandidateAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if len(eligible) > maxAttempts {
		eligible = eligible[:maxAttempts]
	}

	// A later candidate may succeed where the top one cannot be filled in or
	// its datasource rejects the query. Remember the first rejection so the
	// final outcome reflects the best candidate, not the last.
	var firstMissing *extractor.InsufficientInformationError

	for _, candidate := range eligible {
		tmpl, ok := set.Get(candidate.TemplateID)
		if !ok {
			continue
		}

		extractStart := time.Now()
		values, extErr := e.extractor.Extract(ctx, query, tmpl)
		metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(extractStart).Seconds())

		if extErr != nil {
			var insufficient *extractor.InsufficientInformationError
			if errors.As(extErr, &insufficient) {
				log.Info("Candidate rejected, parameters missing", map[string]interface{}{
					"templateId": tmpl.ID,
					"missing":    insufficient.Missing,
				})
				if firstMissing == nil {
					firstMissing = insufficient
				}
				continue
			}
			log.Warn("Extraction service failure", map[string]interface{}{
				"templateId": tmpl.ID,
				"error":      extErr.Error(),
			})
			return &AnswerResult{
				Outcome:    OutcomeServiceDegraded,
				TemplateID: tmpl.ID,
			}, nil
		}

		params := make(map[string]interface{}, len(values))
		for name, v := range values {
			params[name] = v.Value
		}

		execStart := time.Now()
		outcome := e.executor.Execute(ctx, tmpl, params)
		metrics.StageDuration.WithLabelValues("execute").Observe(time.Since(execStart).Seconds())

		switch outcome.Status {
		case executor.StatusSuccess:
			metrics.TemplateMatches.WithLabelValues(tmpl.ID).Inc()
			return &AnswerResult{
				Outcome:    OutcomeAnswered,
				Items:      e.formatter.FormatRows(tmpl, outcome.Rows, candidate.FinalScore, values),
				TemplateID: tmpl.ID,
				Similarity: candidate.FinalScore,
			}, nil

		case executor.StatusEmpty:
			metrics.TemplateMatches.WithLabelValues(tmpl.ID).Inc()
			return &AnswerResult{
				Outcome:    OutcomeAnswered,
				Items:      e.formatter.FormatEmpty(tmpl, candidate.FinalScore, values),
				TemplateID: tmpl.ID,
				Similarity: candidate.FinalScore,
			}, nil

		default:
			if outcome.ErrorKind.Retryable() || outcome.ErrorKind == executor.KindCircuitOpen {
				// The datasource is struggling; trying more candidates against
				// it would only pile on.
				return &AnswerResult{
					Outcome:    OutcomeServiceDegraded,
					TemplateID: tmpl.ID,
				}, nil
			}
			log.Warn("Candidate rejected by datasource", map[string]interface{}{
				"templateId": tmpl.ID,
				"errorKind":  string(outcome.ErrorKind),
			})
		}
	}

	if firstMissing != nil {
		return &AnswerResult{
			Outcome:       OutcomeInsufficientInformation,
			TemplateID:    firstMissing.TemplateID,
			MissingParams: firstMissing.Missing,
		}, nil
	}

	// Every eligible candidate was rejected permanently.
	return &AnswerResult{Outcome: OutcomeNoConfidentMatch, BestScore: eligible[0].FinalScore}, nil
}
