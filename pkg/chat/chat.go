// Package chat turns one inbound chat turn into a persisted assistant reply.
//
// A turn moves through Validate, ExtractFiles, AssembleContext and Generate,
// then persists the user and assistant messages in one transaction. Nothing
// is written unless generation succeeded, and a failure while persisting
// rolls back both rows.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"Copilot/models"
	"Copilot/pkg/apperr"
	"Copilot/pkg/assembler"
	"Copilot/pkg/extract"
	"Copilot/pkg/metrics"
	"Copilot/pkg/repository"
)

const (
	MaxMessageLength = 10000
	StatusSuccess    = "success"
)

// Generator produces the assistant reply. services.CompletionService is the
// production implementation.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, history []models.ChatMessage) (string, error)
}

type Request struct {
	UserID         uint
	ConversationID uint
	Message        string
	Domain         string
	Files          []extract.Upload
}

type Result struct {
	Response       string `json:"response"`
	MessageID      uint   `json:"message_id"`
	ConversationID uint   `json:"conversation_id"`
	Status         string `json:"status"`
}

type Service struct {
	store     repository.Store
	extractor *extract.Extractor
	assembler *assembler.Assembler
	generator Generator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewService(store repository.Store, ex *extract.Extractor, asm *assembler.Assembler, gen Generator, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		extractor: ex,
		assembler: asm,
		generator: gen,
		metrics:   m,
		logger:    logger.With("component", "chat"),
		tracer:    otel.Tracer("Copilot/pkg/chat"),
	}
}

// Handle runs one chat turn for req.UserID.
func (s *Service) Handle(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "chat.Handle", trace.WithAttributes(
		attribute.Int64("conversation.id", int64(req.ConversationID)),
		attribute.Int("files", len(req.Files)),
	))
	defer func() {
		status := StatusSuccess
		if err != nil {
			status = apperr.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		s.metrics.ChatRequest(status)
		span.End()
	}()

	log := s.logger.With("conversation_id", req.ConversationID, "user_id", req.UserID)

	if err := s.stage(ctx, log, "validate", func(ctx context.Context) error {
		return s.validate(ctx, req)
	}); err != nil {
		return nil, err
	}

	var files []extract.File
	if err := s.stage(ctx, log, "extract_files", func(ctx context.Context) error {
		var err error
		files, err = s.extractFiles(ctx, req.Files)
		return err
	}); err != nil {
		return nil, err
	}

	var turn assembler.Context
	if err := s.stage(ctx, log, "assemble_context", func(ctx context.Context) error {
		history, err := s.store.GetLastMessages(ctx, req.ConversationID, s.assembler.HistoryLimit())
		if err != nil {
			return apperr.Internal(err, "failed to load conversation history")
		}
		turn = s.assembler.Assemble(assembler.Input{
			ConversationID: req.ConversationID,
			Message:        req.Message,
			Domain:         req.Domain,
			Files:          files,
			History:        history,
		})
		return nil
	}); err != nil {
		return nil, err
	}
	log.Info("processing message", "domain", string(turn.Domain), "first_message", turn.FirstMessage,
		"history", len(turn.History), "files", len(files))

	var reply string
	if err := s.stage(ctx, log, "generate", func(ctx context.Context) error {
		var err error
		reply, err = s.generator.Generate(ctx, turn.Body, turn.SystemPrompt, turn.History)
		return err
	}); err != nil {
		return nil, err
	}

	var assistant *models.Message
	if err := s.stage(ctx, log, "persist", func(ctx context.Context) error {
		var err error
		assistant, err = s.persist(ctx, req, turn, files, reply)
		return err
	}); err != nil {
		return nil, err
	}

	log.Info("message processed", "message_id", assistant.ID, "reply_chars", utf8.RuneCountInString(reply))
	return &Result{
		Response:       reply,
		MessageID:      assistant.ID,
		ConversationID: req.ConversationID,
		Status:         StatusSuccess,
	}, nil
}

// stage runs fn in its own span. Failures are logged once here.
func (s *Service) stage(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "chat."+name)
	defer span.End()

	log.Debug("chat stage", "stage", name)
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !isClassified(err) {
		err = apperr.Wrap(apperr.KindTimeout, err, "request cancelled during %s", name)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, apperr.KindOf(err).String())

	level := slog.LevelWarn
	if apperr.KindOf(err) == apperr.KindInternal {
		level = slog.LevelError
	}
	log.Log(ctx, level, "chat stage failed", "stage", name, "kind", apperr.KindOf(err).String(), "err", err)
	return err
}

func (s *Service) validate(ctx context.Context, req Request) error {
	if req.ConversationID == 0 {
		return apperr.Validation("conversation_id must be a positive integer")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperr.Validation("message must not be empty")
	}
	if n := utf8.RuneCountInString(req.Message); n > MaxMessageLength {
		return apperr.Validation("message is too long (%d characters, maximum is %d)", n, MaxMessageLength)
	}
	// Reject bad attachments before touching the database.
	for _, u := range req.Files {
		if _, err := s.extractor.Check(u); err != nil {
			return err
		}
	}

	conv, err := s.store.GetConversationByID(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return apperr.Internal(err, "failed to load conversation")
	}
	if conv == nil {
		return apperr.NotFound("conversation not found")
	}
	return nil
}

// extractFiles extracts every upload concurrently. The first failure cancels
// the rest and is returned; results keep upload order.
func (s *Service) extractFiles(ctx context.Context, uploads []extract.Upload) ([]extract.File, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	files := make([]extract.File, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range uploads {
		g.Go(func() error {
			f, err := s.extractor.Extract(gctx, u)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Service) persist(ctx context.Context, req Request, turn assembler.Context, files []extract.File, reply string) (*models.Message, error) {
	fileName, contentType := attachmentMeta(files)

	var assistant *models.Message
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.LockConversation(ctx, req.ConversationID); err != nil {
			return err
		}
		// Another turn may have landed since the history was read.
		n, err := tx.CountMessages(ctx, req.ConversationID)
		if err != nil {
			return err
		}
		var enriched *string
		if n == 0 {
			ep := assembler.Enrich(turn.SystemPrompt, turn.Body)
			enriched = &ep
		}

		if _, err := tx.SaveMessage(ctx, repository.SaveMessageParams{
			ConversationID: req.ConversationID,
			Role:           models.RoleUser,
			Content:        req.Message,
			EnrichedPrompt: enriched,
			FileName:       fileName,
			ContentType:    contentType,
		}); err != nil {
			return err
		}
		assistant, err = tx.SaveMessage(ctx, repository.SaveMessageParams{
			ConversationID: req.ConversationID,
			Role:           models.RoleAssistant,
			Content:        reply,
		})
		return err
	})
	if err != nil {
		if isClassified(err) {
			return nil, err
		}
		return nil, apperr.Internal(err, "failed to save messages")
	}
	return assistant, nil
}

// attachmentMeta joins attachment names and content types, nil when there
// were no attachments.
func attachmentMeta(files []extract.File) (*string, *string) {
	if len(files) == 0 {
		return nil, nil
	}
	names := make([]string, len(files))
	types := make([]string, 0, len(files))
	for i, f := range files {
		names[i] = f.Name
		if f.ContentType != "" {
			types = append(types, f.ContentType)
		}
	}
	name := strings.Join(names, ", ")
	if len(types) == 0 {
		return &name, nil
	}
	ct := strings.Join(types, ", ")
	return &name, &ct
}

func isClassified(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e)
}
