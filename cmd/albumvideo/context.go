package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"albumvideo/internal/api"
	"albumvideo/internal/config"
	"albumvideo/internal/integrity"
	"albumvideo/internal/ledger"
	"albumvideo/internal/logging"
	"albumvideo/internal/media/ffprobe"
	"albumvideo/internal/orchestrator"
	"albumvideo/internal/plan"
	"albumvideo/internal/preset"
	"albumvideo/internal/report"
	"albumvideo/internal/services/ffmpeg"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

// stack bundles the wired subsystems behind one teardown.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	orch     *orchestrator.Orchestrator
	service  *api.Service
	recovery ledger.RecoveryReport
}

func (s *stack) close() {
	_ = s.orch.Close()
	_ = s.store.Close()
}

// buildStack wires the full render stack and runs startup recovery.
func (c *commandContext) buildStack(ctx context.Context) (*stack, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewSession(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logging.PruneArchivedLogs(cfg.Paths.LogDir, cfg.Logging.RetentionDays, logger)

	store, err := ledger.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	gate, err := integrity.NewGate(cfg, report.Packaged(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	builder := plan.NewBuilder(ffprobe.NewProber(cfg.FFprobeBinary()))
	encoder := ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.FFmpegBinary()))
	orch := orchestrator.New(cfg, store, gate, preset.NewRegistry(), builder, encoder, logger)

	recovery, err := orch.Startup(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		orch:     orch,
		service:  api.NewService(orch),
		recovery: recovery,
	}, nil
}
