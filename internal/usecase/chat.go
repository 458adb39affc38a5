package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"care-companion/internal/domain"
)

const (
	DefaultMaxNewTokens      = 256
	DefaultTemperature       = 0.5
	DefaultTopP              = 0.9
	DefaultRepetitionPenalty = 1.2
)

type ModelLoader interface {
	Load(ctx context.Context) (domain.ModelHandle, error)
}

type Generator interface {
	Generate(ctx context.Context, model, prompt string, params domain.GenerationParams) (string, error)
}

type ExchangeRecorder interface {
	SaveExchange(ctx context.Context, ex domain.Exchange) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	loader   ModelLoader
	gen      Generator
	template *PromptTemplate
	params   domain.GenerationParams
	recorder ExchangeRecorder
	logger   *slog.Logger

	loadMu  sync.Mutex
	modelMu sync.RWMutex
	handle  *domain.ModelHandle
}

type ChatInput struct {
	Message       string
	CorrelationID string
}

type ChatOutput struct {
	Reply      string
	Model      string
	ExchangeID string
}

type HealthStatus struct {
	ModelLoaded bool
	Model       string
	Source      string
}

type Option func(*ChatService)

// WithRecorder enables best-effort exchange logging.
func WithRecorder(r ExchangeRecorder) Option {
	return func(s *ChatService) {
		s.recorder = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultGenerationParams returns the canonical decoding settings.
func DefaultGenerationParams() domain.GenerationParams {
	return domain.GenerationParams{
		MaxNewTokens:      DefaultMaxNewTokens,
		Temperature:       DefaultTemperature,
		TopP:              DefaultTopP,
		RepetitionPenalty: DefaultRepetitionPenalty,
	}
}

func NewChatService(loader ModelLoader, gen Generator, tmpl *PromptTemplate, params domain.GenerationParams, opts ...Option) (*ChatService, error) {
	if loader == nil {
		return nil, errors.New("usecase: model loader must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if tmpl == nil {
		return nil, errors.New("usecase: prompt template must not be nil")
	}
	if params.MaxNewTokens <= 0 {
		params.MaxNewTokens = DefaultMaxNewTokens
	}
	if params.Temperature <= 0 {
		params.Temperature = DefaultTemperature
	}
	if params.TopP <= 0 {
		params.TopP = DefaultTopP
	}
	if params.RepetitionPenalty <= 0 {
		params.RepetitionPenalty = DefaultRepetitionPenalty
	}
	s := &ChatService{
		loader:   loader,
		gen:      gen,
		template: tmpl,
		params:   params,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Warmup loads the model at process start. A failure leaves the service
// degraded; Chat retries the load on each request until one succeeds.
func (s *ChatService) Warmup(ctx context.Context) error {
	_, err := s.ensureModel(ctx)
	return err
}

// Health reports the current model state without attempting a load.
func (s *ChatService) Health(_ context.Context) HealthStatus {
	h, ok := s.loadedHandle()
	if !ok {
		return HealthStatus{}
	}
	return HealthStatus{ModelLoaded: true, Model: h.Name, Source: h.Source}
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorValidation, "empty_message", MessageCannotBeEmpty, nil)
	}

	handle, err := s.ensureModel(ctx)
	if err != nil {
		return ChatOutput{}, newError(ErrorModelUnavailable, "model_not_loaded", MessageModelNotLoaded, err)
	}

	started := time.Now()
	ex := domain.Exchange{
		ID:            newUUID(),
		CorrelationID: in.CorrelationID,
		Message:       message,
		Model:         handle.Name,
		CreatedAt:     started.UTC(),
	}

	raw, err := s.gen.Generate(ctx, handle.Name, s.template.BuildPrompt(message), s.params)
	ex.LatencyMillis = time.Since(started).Milliseconds()
	if err != nil {
		attrs := []any{
			"correlation_id", in.CorrelationID,
			"model", handle.Name,
			"err", err,
		}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "upstream_status", status)
		}
		s.logger.Error("generation failed", attrs...)
		ex.Status = domain.ExchangeFailed
		ex.ErrorCode = string(ErrorGeneration)
		s.record(ctx, ex)
		return ChatOutput{}, newError(ErrorGeneration, "generation_failed", MessageGenerateFailed, err)
	}

	if strings.TrimSpace(raw) == "" {
		s.logger.Warn("model returned empty output, replying with disclaimer only",
			"correlation_id", in.CorrelationID,
			"model", handle.Name,
		)
	}
	reply := s.template.FinalizeReply(raw)

	ex.Reply = reply
	ex.Status = domain.ExchangeComplete
	s.record(ctx, ex)

	return ChatOutput{
		Reply:      reply,
		Model:      handle.Name,
		ExchangeID: ex.ID,
	}, nil
}

// ensureModel returns the loaded handle, loading it if needed. loadMu
// serializes loads; modelMu guards only the handle itself.
func (s *ChatService) ensureModel(ctx context.Context) (domain.ModelHandle, error) {
	if h, ok := s.loadedHandle(); ok {
		return h, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if h, ok := s.loadedHandle(); ok {
		return h, nil
	}

	h, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.Error("model load failed", "err", err)
		return domain.ModelHandle{}, err
	}

	s.modelMu.Lock()
	s.handle = &h
	s.modelMu.Unlock()
	s.logger.Info("model loaded", "model", h.Name, "source", h.Source)
	return h, nil
}

func (s *ChatService) loadedHandle() (domain.ModelHandle, bool) {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	if s.handle == nil {
		return domain.ModelHandle{}, false
	}
	return *s.handle, true
}

// record never fails the request; a canceled request is still logged.
func (s *ChatService) record(ctx context.Context, ex domain.Exchange) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.SaveExchange(context.WithoutCancel(ctx), ex); err != nil {
		s.logger.Warn("failed to record exchange",
			"exchange_id", ex.ID,
			"correlation_id", ex.CorrelationID,
			"err", err,
		)
	}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
