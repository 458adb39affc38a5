package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"care-companion/internal/config"
	"care-companion/internal/domain"
)

// requiredArtifacts must exist in a local checkpoint directory before the
// fine-tuned model is considered present.
var requiredArtifacts = []string{"config.json", "tokenizer.json"}

// Loader resolves which model the backend serves: the local fine-tuned
// checkpoint first, then the public fallback.
type Loader struct {
	backend      Backend
	localDir     string
	localName    string
	fallbackName string
	logger       *slog.Logger
	now          func() time.Time
}

func NewLoader(backend Backend, cfg config.ModelConfig, logger *slog.Logger) (*Loader, error) {
	if backend == nil {
		return nil, errors.New("model: backend must not be nil")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("model: local model name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		backend:      backend,
		localDir:     strings.TrimSpace(cfg.Dir),
		localName:    strings.TrimSpace(cfg.Name),
		fallbackName: strings.TrimSpace(cfg.Fallback),
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (l *Loader) Load(ctx context.Context) (domain.ModelHandle, error) {
	localErr := l.loadLocal(ctx)
	if localErr == nil {
		return l.handle(l.localName, domain.ModelSourceLocal), nil
	}
	if l.fallbackName == "" || l.fallbackName == l.localName {
		return domain.ModelHandle{}, fmt.Errorf("model: local model %q: %w", l.localName, localErr)
	}

	l.logger.Warn("local model unavailable, trying fallback",
		"model", l.localName,
		"fallback", l.fallbackName,
		"err", localErr,
	)
	if err := l.backend.Available(ctx, l.fallbackName); err != nil {
		return domain.ModelHandle{}, errors.Join(
			fmt.Errorf("model: local model %q: %w", l.localName, localErr),
			fmt.Errorf("model: fallback model %q: %w", l.fallbackName, err),
		)
	}
	return l.handle(l.fallbackName, domain.ModelSourceFallback), nil
}

func (l *Loader) loadLocal(ctx context.Context) error {
	if l.localDir != "" {
		if err := verifyArtifacts(l.localDir); err != nil {
			return err
		}
	}
	return l.backend.Available(ctx, l.localName)
}

func (l *Loader) handle(name, source string) domain.ModelHandle {
	return domain.ModelHandle{Name: name, Source: source, LoadedAt: l.now().UTC()}
}

func verifyArtifacts(dir string) error {
	var missing []string
	for _, name := range requiredArtifacts {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s in %s", strings.Join(missing, ", "), dir)
	}
	return nil
}
