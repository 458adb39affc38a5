package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"care-companion/handler"
	"care-companion/internal/config"
	"care-companion/internal/integrations/openai"
	"care-companion/internal/integrations/paramstore"
	"care-companion/internal/model"
	"care-companion/internal/repository"
	"care-companion/internal/usecase"
)

const openAITokenParam = "open-ai-token"

// App wires the chat service to its transport for one runtime mode.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *usecase.ChatService
	handler *handler.Handler
	server  *http.Server
}

// NewApp builds the dependency graph: logger, backend, loader, template,
// optional exchange log, chat service, handler.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	return newApp(ctx, cfg, initLogger(cfg.Log, os.Stdout))
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	sdk := &awsLoader{}

	keys, err := apiKeySource(ctx, cfg, sdk)
	if err != nil {
		return nil, err
	}

	backend, err := model.NewBackend(cfg.Model, keys)
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}
	loader, err := model.NewLoader(backend, cfg.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("init model loader: %w", err)
	}
	tmpl, err := usecase.NewPromptTemplate(cfg.TemplateConfig())
	if err != nil {
		return nil, fmt.Errorf("init prompt template: %w", err)
	}

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if table := strings.TrimSpace(cfg.Exchange.Table); table != "" {
		awsCfg, err := sdk.load(ctx)
		if err != nil {
			return nil, err
		}
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), table)
		if err != nil {
			return nil, fmt.Errorf("init exchange log: %w", err)
		}
		opts = append(opts, usecase.WithRecorder(repo))
	}

	svc, err := usecase.NewChatService(loader, backend, tmpl, cfg.GenerationParams(), opts...)
	if err != nil {
		return nil, fmt.Errorf("init chat service: %w", err)
	}
	h, err := handler.NewHandler(svc, logger)
	if err != nil {
		return nil, fmt.Errorf("init handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", h)

	return &App{
		cfg:     cfg,
		logger:  logger,
		service: svc,
		handler: h,
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Handler exposes the HTTP routing, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run loads the model and serves until ctx is done. A failed model load is
// logged and the service starts degraded.
func (a *App) Run(ctx context.Context) error {
	if err := a.service.Warmup(ctx); err != nil {
		a.logger.Error("model warmup failed, starting degraded", "err", err)
	}

	if a.cfg.Runtime == config.RuntimeLambda {
		a.logger.Info("starting lambda handler")
		lambda.StartWithOptions(a.handler.Handle, lambda.WithContext(ctx))
		return nil
	}
	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// apiKeySource returns nil unless the openai backend is selected. An explicit
// OPENAI_API_KEY wins over the parameter store.
func apiKeySource(ctx context.Context, cfg *config.Config, sdk *awsLoader) (openai.KeySource, error) {
	if cfg.Model.Backend != config.BackendOpenAI {
		return nil, nil
	}
	if cfg.OpenAI.APIKey != "" {
		return openai.StaticKey(cfg.OpenAI.APIKey), nil
	}

	awsCfg, err := sdk.load(ctx)
	if err != nil {
		return nil, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("init SSM client: %w", err)
	}
	name := strings.TrimRight(cfg.OpenAI.ParamPrefix, "/") + "/" + openAITokenParam
	tokens, err := paramstore.NewTokenSource(ssmClient, name)
	if err != nil {
		return nil, fmt.Errorf("init token source: %w", err)
	}
	return tokens, nil
}

// awsLoader loads the shared AWS config at most once, and only when a
// component needs it.
type awsLoader struct {
	cfg    aws.Config
	loaded bool
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.cfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	l.cfg, l.loaded = cfg, true
	return cfg, nil
}

func initLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
