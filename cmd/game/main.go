package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tatianab/casefile/internal/config"
	"github.com/tatianab/casefile/internal/engine"
	"github.com/tatianab/casefile/internal/game"
	"github.com/tatianab/casefile/internal/logger"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/orchestrator"
	"github.com/tatianab/casefile/internal/retry"
	"github.com/tatianab/casefile/internal/speech"
	"github.com/tatianab/casefile/internal/storage"
	"github.com/tatianab/casefile/internal/tui"
)

func main() {
	resume := flag.Bool("resume", false, "resume the case saved in SAVE_DIR")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogFile,
	})
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log, *resume); err != nil {
		log.Error("Game exited with error", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, resume bool) error {
	settings := config.SettingsFromConfig(cfg)
	if err := settings.LoadSettings(cfg.SettingsPath); err != nil {
		log.Warn("Ignoring unreadable settings file", zap.String("path", cfg.SettingsPath), zap.Error(err))
	}
	if !settings.HasValidCredentials() {
		return fmt.Errorf("%w: set OPENAI_API_KEY or GEMINI_API_KEY for PROVIDER=%s", models.ErrMissingCredentials, settings.Provider)
	}

	gen, err := engine.New(ctx, generatorOptions(cfg, settings), log)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	defer gen.Close()

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithRetryPolicy(retry.Policy{
			Attempts:  cfg.AIMaxAttempts,
			BaseDelay: cfg.AIBaseRetryDelay,
			MaxDelay:  cfg.AIMaxRetryDelay,
			Retryable: models.Retryable,
		}),
		orchestrator.WithNarrationWait(cfg.NarrationWait),
		orchestrator.WithIllustrations(settings.IllustrationsEnabled()),
	}

	if synth := newSynthesizer(cfg, settings, log); synth != nil {
		opts = append(opts, orchestrator.WithSpeech(synth))
	}

	uiOpts := tui.Options{
		SaveDir:      cfg.SaveDir,
		Narration:    settings,
		SettingsPath: cfg.SettingsPath,
		Logger:       log,
	}
	if cfg.DBPath != "" {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening case archive: %w", err)
		}
		store, err := storage.New(db)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithJournal(store))
		uiOpts.Archive = store
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	session := game.NewSession(settings, game.WithMaxScore(cfg.MaxScore))
	orch := orchestrator.New(session, gen, settings, opts...)

	if resume {
		saves, err := game.ListSaves(cfg.SaveDir)
		if err != nil {
			return fmt.Errorf("listing saves: %w", err)
		}
		if !slices.Contains(saves, "current") {
			return fmt.Errorf("no saved case in %s", cfg.SaveDir)
		}
		snap, err := game.LoadSnapshot(cfg.SaveDir, "current")
		if err != nil {
			return fmt.Errorf("loading saved case: %w", err)
		}
		if err := orch.Restore(ctx, snap); err != nil {
			return fmt.Errorf("restoring saved case: %w", err)
		}
	}

	return tui.Run(orch, uiOpts)
}

func generatorOptions(cfg *config.Config, settings *config.Settings) engine.Options {
	if settings.Provider == config.ProviderGemini {
		return engine.Options{
			Provider: engine.ProviderGemini,
			APIKey:   settings.APIKey(),
			Model:    cfg.GeminiModel,
		}
	}
	return engine.Options{
		Provider:   engine.ProviderOpenAI,
		APIKey:     settings.APIKey(),
		Model:      cfg.OpenAIModel,
		BaseURL:    cfg.OpenAIBaseURL,
		ImageModel: cfg.OpenAIImageModel,
	}
}

// newSynthesizer picks the narration backend independently of the story backend.
func newSynthesizer(cfg *config.Config, settings *config.Settings, log *zap.Logger) speech.Synthesizer {
	dir := filepath.Join(cfg.SaveDir, "audio")
	switch settings.SpeechBackend() {
	case config.SpeechElevenLabs:
		return speech.NewElevenLabs(speech.ElevenLabsOptions{
			APIKey:  settings.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			Dir:     dir,
		}, log)
	case config.SpeechOpenAI:
		return speech.NewOpenAI(speech.Options{
			APIKey:  settings.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAITTSModel,
			Dir:     dir,
		}, log)
	}
	return nil
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("Serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server stopped", zap.Error(err))
	}
}
