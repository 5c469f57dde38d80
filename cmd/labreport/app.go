package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm/mistral"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/labreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
	"github.com/joseph-ayodele/labreport-extractor/internal/server"
)

// app bundles the wiring shared by the subcommands.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
	repo   repository.ExtractionRepository
	proc   *pipeline.Processor
	export *export.Service
}

func loadConfig() (*common.Config, *slog.Logger, error) {
	cfg, err := common.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if storeDSN != "" {
		cfg.Store.DSN = storeDSN
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp loads configuration and builds the full pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var repo repository.ExtractionRepository
	if !noStore {
		repo, err = server.ConnectStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		ParseAttempts:  cfg.Pipeline.ParseAttempts,
		RepairJSON:     cfg.Pipeline.RepairJSON,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes(),
		MaxPages:       cfg.Pipeline.MaxPages,
	}, newExtractor(cfg, logger), newCompleter(cfg, logger), repo, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		proc:   proc,
		export: export.NewService(repo, logger),
	}, nil
}

func (a *app) Close() {
	server.CloseStore(a.repo, a.logger)
}

func newExtractor(cfg *common.Config, logger *slog.Logger) ocr.Extractor {
	if cfg.OCR.Provider == common.OCRProviderPDFToText {
		return ocr.NewLocalExtractor(ocr.LocalConfig{}, nil, logger)
	}
	return ocr.NewMistralClient(ocr.MistralConfig{
		APIKey:     cfg.OCR.APIKey,
		BaseURL:    cfg.OCR.BaseURL,
		Model:      cfg.OCR.Model,
		UploadMode: cfg.OCR.UploadMode,
		RateLimit:  cfg.OCR.RateLimit,
		Timeout:    cfg.OCR.Timeout,
	}, logger)
}

func newCompleter(cfg *common.Config, logger *slog.Logger) llm.Completer {
	if cfg.LLM.Provider == common.LLMProviderOpenAI {
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	}
	return mistral.NewClient(mistral.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
}

// writeExport renders rec next to outDir using the upload's base name.
func (a *app) writeExport(res *pipeline.Result, outDir string, format export.Format) (string, error) {
	data, err := a.export.Render(res.Record, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, export.FileName(res.FileName, format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
