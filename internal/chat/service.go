// Package chat wires the conversational query pipeline: resolve the
// conversation, compose a prompt, generate candidate SQL, validate it,
// execute it against the warehouse and record the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finchat/finchat/internal/conversation"
	"github.com/finchat/finchat/internal/nl2sql"
	"github.com/finchat/finchat/internal/observability"
	"github.com/finchat/finchat/internal/prompt"
	"github.com/finchat/finchat/internal/sqlguard"
	"github.com/finchat/finchat/internal/warehouse"
)

type SchemaProvider interface {
	Summary(ctx context.Context) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (warehouse.QueryResult, error)
	Ping(ctx context.Context) error
}

type ServiceConfig struct {
	MaxHistoryTurns  int
	SummarizeResults bool
}

type Service struct {
	store     *conversation.Store
	composer  *prompt.Composer
	generator nl2sql.Generator
	validator *sqlguard.Validator
	executor  Executor
	schema    SchemaProvider
	logger    *slog.Logger

	maxHistoryTurns int
	summarize       bool
}

func NewService(
	store *conversation.Store,
	composer *prompt.Composer,
	generator nl2sql.Generator,
	validator *sqlguard.Validator,
	executor Executor,
	schema SchemaProvider,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	maxTurns := cfg.MaxHistoryTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Service{
		store:           store,
		composer:        composer,
		generator:       generator,
		validator:       validator,
		executor:        executor,
		schema:          schema,
		logger:          logger,
		maxHistoryTurns: maxTurns,
		summarize:       cfg.SummarizeResults,
	}
}

// Result is one completed exchange. Err carries the recorded failure, if
// any; Response always holds something readable for the user.
type Result struct {
	ConversationID string
	Response       string
	SQL            string
	QueryResult    *warehouse.QueryResult
	Duration       time.Duration
	Err            string
}

// Handle runs one chat turn end to end. An unknown conversation id is the
// only error returned to the caller; every pipeline failure degrades to a
// conversational response and is still recorded on the turn, so follow-up
// turns see consistent history.
func (s *Service) Handle(ctx context.Context, conversationID, message string) (Result, error) {
	id, err := s.store.GetOrCreate(conversationID)
	if err != nil {
		return Result{}, err
	}
	observability.ObserveChatRequest()
	start := time.Now()

	history, err := s.store.History(id, s.maxHistoryTurns)
	if err != nil {
		return Result{}, err
	}

	schemaSummary, err := s.schema.Summary(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "schema fetch failed", slog.Any("error", err))
		return s.finish(id, message, start, Result{
			Response: "Unable to retrieve the database schema. Please check the warehouse connection.",
			Err:      fmt.Sprintf("schema retrieval failed: %v", err),
		}), nil
	}

	genStart := time.Now()
	reply, err := s.generator.Generate(ctx, s.composer.Compose(schemaSummary, history, message))
	observability.ObserveGenerationLatency(time.Since(genStart))
	if err != nil {
		return s.finish(id, message, start, s.generationFailure(ctx, err)), nil
	}

	if reply.SQL == "" {
		// The model answered conversationally (e.g. asked for
		// clarification). Normal outcome, nothing to execute.
		return s.finish(id, message, start, Result{Response: reply.Explanation}), nil
	}

	verdict := s.validator.Validate(reply.SQL)
	if !verdict.Accepted {
		observability.IncrementValidationRejection(string(verdict.Reason))
		s.logger.WarnContext(ctx, "candidate query rejected",
			slog.String("reason", string(verdict.Reason)),
			slog.String("detail", verdict.Detail),
		)
		response := strings.TrimSpace(reply.Explanation)
		if response == "" {
			response = "I couldn't generate a safe read-only query for that request. Try rephrasing the question."
		}
		return s.finish(id, message, start, Result{
			Response: response,
			Err:      fmt.Sprintf("query rejected: %s", verdict.Reason),
		}), nil
	}

	queryResult, err := s.executor.Execute(ctx, verdict.SQL)
	if err != nil {
		return s.finish(id, message, start, s.executionFailure(ctx, verdict.SQL, err)), nil
	}

	return s.finish(id, message, start, Result{
		Response:    s.describeResult(ctx, message, verdict.SQL, queryResult),
		SQL:         verdict.SQL,
		QueryResult: &queryResult,
	}), nil
}

func (s *Service) generationFailure(ctx context.Context, err error) Result {
	s.logger.ErrorContext(ctx, "sql generation failed", slog.Any("error", err))
	response := "I'm having trouble reaching the query generator right now. Please try again."
	if errors.Is(err, nl2sql.ErrTimeout) {
		response = "The query generator took too long to answer. Please try again."
	}
	return Result{Response: response, Err: err.Error()}
}

func (s *Service) executionFailure(ctx context.Context, sqlText string, err error) Result {
	s.logger.ErrorContext(ctx, "query execution failed", slog.Any("error", err))
	result := Result{SQL: sqlText, Err: err.Error()}
	switch {
	case errors.Is(err, warehouse.ErrQueryTimeout):
		result.Response = "The query took too long and was cancelled. Try narrowing the question."
	case errors.Is(err, warehouse.ErrResourceExhausted):
		result.Response = "The warehouse is busy right now. Please try again in a moment."
	default:
		result.Response = fmt.Sprintf("The query failed: %v", err)
	}
	return result
}

// describeResult asks the model to phrase the rows as an answer, falling
// back to a counted summary when summarization is disabled or fails.
func (s *Service) describeResult(ctx context.Context, question, sqlText string, result warehouse.QueryResult) string {
	if s.summarize {
		reply, err := s.generator.Generate(ctx, s.composer.ComposeSummary(question, sqlText, result))
		if err == nil {
			if text := strings.TrimSpace(reply.Explanation); text != "" {
				return text
			}
		} else {
			s.logger.WarnContext(ctx, "result summarization failed", slog.Any("error", err))
		}
	}
	if result.RowCount == 0 {
		return "No results found for your query."
	}
	if result.Truncated {
		return fmt.Sprintf("Found %d result(s); output was capped at the row limit.", result.RowCount)
	}
	return fmt.Sprintf("Found %d result(s).", result.RowCount)
}

func (s *Service) finish(id, message string, start time.Time, result Result) Result {
	result.ConversationID = id
	result.Duration = time.Since(start)

	assistant := conversation.Turn{
		Role:     conversation.RoleAssistant,
		Message:  result.Response,
		SQL:      result.SQL,
		Result:   result.QueryResult,
		Err:      result.Err,
		Duration: result.Duration,
	}
	if err := s.store.AppendTurns(id,
		conversation.Turn{Role: conversation.RoleUser, Message: message},
		assistant,
	); err != nil {
		// The conversation can only vanish here through idle eviction
		// racing the request; the response is still valid.
		s.logger.Warn("failed to record turn", slog.String("conversation_id", id), slog.Any("error", err))
	}
	return result
}
