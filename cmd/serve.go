package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"pixconv/batch"
	"pixconv/config"
	"pixconv/credentials"
	"pixconv/failures"
	"pixconv/logger"
	"pixconv/models"
	"pixconv/packaging"
	"pixconv/routes"
	"pixconv/success"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and edge conversion endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg)
		},
	}
}

// stores are the pebble-backed history and credential databases.
type stores struct {
	success     *success.Store
	failures    *failures.Store
	credentials *credentials.Store
}

func openStores() (*stores, error) {
	s := &stores{}
	var err error
	logger.Debug("Initializing credentials database")
	if s.credentials, err = credentials.Open(config.GetCredentialsDBPath()); err != nil {
		return nil, fmt.Errorf("failed to initialize credentials store: %w", err)
	}
	logger.Debug("Initializing failures database")
	if s.failures, err = failures.Open(config.GetFailuresDBPath()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize failure store: %w", err)
	}
	logger.Debug("Initializing success database")
	if s.success, err = success.Open(config.GetSuccessDBPath()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize success store: %w", err)
	}
	return s, nil
}

func (s *stores) Close() {
	if s.success != nil {
		s.success.Close()
	}
	if s.failures != nil {
		s.failures.Close()
	}
	if s.credentials != nil {
		s.credentials.Close()
	}
}

// historyHooks records every finished job and packages completed batches
// when packaging is enabled.
func historyHooks(ctx context.Context, st *stores, packager *packaging.Packager) batch.Hooks {
	return batch.Hooks{
		OnJobDone: func(batchID string, job models.ConversionJob) {
			var err error
			if job.Status == models.StatusCompleted {
				err = st.success.RecordJob(batchID, job)
			} else {
				err = st.failures.RecordJob(batchID, job)
			}
			if err != nil {
				logger.Errorf("[serve] failed to record job %s: %v", job.ID, err)
			}
		},
		OnBatchDone: func(b models.BatchSnapshot) {
			if packager == nil {
				return
			}
			if _, err := packager.PackageBatch(ctx, b); err != nil {
				logger.Errorf("[serve] failed to package %s: %v", b.ID, err)
			}
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("Starting pixconv server initialization")

	if err := os.MkdirAll(config.GetDataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(config.GetLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another pixconv server is using %s", config.GetDataDir())
	}
	defer lock.Unlock()

	st, err := openStores()
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("History and credential databases initialized")

	p := newPipeline(ctx, cfg, nil)
	defer p.Close(context.Background())

	var packager *packaging.Packager
	if cfg.Packaging.Enabled {
		packager = &packaging.Packager{
			Backend:     cfg.Packaging.Backend,
			StorageKey:  cfg.Packaging.StorageKey,
			Folder:      cfg.Packaging.SubDir,
			Credentials: st.credentials,
		}
	}
	sched := batch.NewScheduler(ctx, p.orchestrator, historyHooks(ctx, st, packager))
	sched.SetMaxConcurrentJobs(cfg.Scheduler.MaxConcurrentJobs)

	go cleanupRoutine(ctx, st, 24*time.Hour)

	api := &routes.Server{
		Converter:      p.local,
		Scheduler:      sched,
		Registry:       p.loader.Registry(),
		Success:        st.success,
		Failures:       st.failures,
		Credentials:    st.credentials,
		JWTSecret:      cfg.Server.JWTSecret,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		ServeDir:       config.GetDirectServeBaseDir(),
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("pixconv server starting on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	sched.PauseProcessing()
	if err := sched.Wait(shutdownCtx); err != nil {
		logger.Warnf("[serve] running jobs did not finish: %v", err)
	}
	return nil
}
