package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"retrospect/internal/janitor"
	"retrospect/pkg/archive"
	"retrospect/pkg/config"
	"retrospect/pkg/contacts"
	"retrospect/pkg/convert"
	"retrospect/pkg/logger"
	"retrospect/pkg/mediacache"
	"retrospect/pkg/sensor"
	"retrospect/pkg/state"
	"retrospect/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	archive   *archive.Store
	cache     *mediacache.Cache
	contacts  *contacts.Resolver
	converter *convert.Converter
	queue     *convert.Queue
	sensor    *sensor.Sensor
	gate      *sensor.Gate

	srv *http.Server
}

// New initializes resources that do not require a running context
// (state dirs, archive, media cache, contacts). It does not start
// background workers or the HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(eff.DataPath); err != nil {
		return nil, fmt.Errorf("failed to prepare data dirs under %s: %w", eff.DataPath, err)
	}

	arch, err := archive.Open(eff.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive at %s: %w", eff.ArchivePath, err)
	}

	cache, err := mediacache.Open(state.PathsVar.Cache)
	if err != nil {
		arch.Close()
		return nil, fmt.Errorf("failed to open media cache at %s: %w", state.PathsVar.Cache, err)
	}

	conv := convert.New(state.PathsVar.Tmp)
	if t := time.Duration(eff.Config.Cache.ConvertTimeout); t > 0 {
		conv.Timeout = t
	}

	sen := sensor.NewSensor(state.PathsVar.Cache, 5*time.Second)

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		archive:   arch,
		cache:     cache,
		contacts:  contacts.New(eff.Config.Archive.ContactsDir),
		converter: conv,
		queue:     convert.NewQueue(eff.Config.Cache.QueueCapacity),
		sensor:    sen,
		gate:      sensor.NewGate(sen, uint64(eff.Config.Cache.MinDiskFree)),
	}
	return a, nil
}

// Run starts the background workers and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if sr := a.eff.Config.Telemetry.SampleRate; sr > 0 {
		telemetry.SetSampleRate(sr)
	}
	if st := time.Duration(a.eff.Config.Telemetry.SlowThreshold); st > 0 {
		telemetry.SetSlowThreshold(st)
	}

	a.sensor.Start()
	defer a.sensor.Stop()

	jan := janitor.New(a.cache, a.eff.Config.Cache)
	janCancel, err := jan.Start(ctx)
	if err != nil {
		return err
	}
	defer janCancel()

	stop := make(chan struct{})
	workers := a.eff.Config.Cache.PrewarmWorkers
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		go a.queue.RunWorker(stop, a.prewarm)
	}
	defer close(stop)

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
		a.closeStores()
		return nil
	case err := <-errCh:
		a.closeStores()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) closeStores() {
	if err := a.cache.Close(); err != nil {
		logger.Warn("cache_close_error", "error", err)
	}
	if err := a.archive.Close(); err != nil {
		logger.Warn("archive_close_error", "error", err)
	}
}

// prewarm converts one HEIC attachment into the cache so the first
// image request is a hit. Non-HEIC and already-cached jobs are no-ops.
func (a *App) prewarm(job convert.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), a.converter.Timeout+5*time.Second)
	defer cancel()

	path := job.Path
	mime := ""
	if path == "" {
		var err error
		path, mime, err = a.archive.AttachmentPath(ctx, job.AttachmentID)
		if err != nil {
			return
		}
	}
	if !convert.IsHEIC(mime, path) {
		return
	}
	if _, _, ok := a.cache.Get(job.AttachmentID); ok {
		return
	}
	if !a.gate.AllowWrites() {
		return
	}
	data, err := a.converter.ToJPEG(ctx, path)
	if err != nil {
		logger.Debug("prewarm_convert_failed", "attachment", job.AttachmentID, "error", err)
		return
	}
	if err := a.cache.Put(job.AttachmentID, data, "prewarm"); err != nil {
		logger.Warn("mediacache_put_failed", "attachment", job.AttachmentID, "error", err)
	}
}
