package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/browser"
	"github.com/sumanthpn07/lazyApply/internal/config"
	"github.com/sumanthpn07/lazyApply/internal/governor"
	"github.com/sumanthpn07/lazyApply/internal/interrupt"
	"github.com/sumanthpn07/lazyApply/internal/jobstore"
	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/internal/metrics"
	"github.com/sumanthpn07/lazyApply/internal/notify"
	"github.com/sumanthpn07/lazyApply/internal/orchestrator"
	"github.com/sumanthpn07/lazyApply/internal/server"
	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/internal/snapshot"
	"github.com/sumanthpn07/lazyApply/internal/submission"
	"github.com/sumanthpn07/lazyApply/internal/submission/generic"
)

func buildRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the lazyApply daemon",
		Long: `Start the daemon: open the job store, restore the queue checkpoint and
serve the control service. Stops on SIGINT or SIGTERM after writing a final
checkpoint and closing the browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
				return errors.Wrap(err, "init logger")
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := newDaemon(ctx, cfg, browser.NewDriver(cfg.Browser))
			if err != nil {
				return err
			}
			defer d.close()
			d.cfgPath = opts.configFile
			return d.run(ctx)
		},
	}
}

// daemon holds everything the run command wires together.
type daemon struct {
	cfg     *config.Config
	cfgPath string // watched for policy changes when set
	log     *zap.SugaredLogger

	store *jobstore.SQLStore
	pub   notify.Publisher
	gov   *governor.Governor
	orch  *orchestrator.Orchestrator
	snaps *snapshot.Manager
	srv   *server.Server
	reg   *prometheus.Registry
}

func newDaemon(ctx context.Context, cfg *config.Config, driver session.Driver) (*daemon, error) {
	d := &daemon{
		cfg:   cfg,
		log:   logger.Component("daemon"),
		snaps: snapshot.NewManager(cfg.Snapshot.Path),
		reg:   prometheus.NewRegistry(),
	}

	store, err := jobstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger.Component("store"))
	if err != nil {
		return nil, err
	}
	d.store = store

	var sink jobstore.Store = store
	if cfg.Redis.URL != "" {
		pub, err := notify.Dial(ctx, cfg.Redis)
		if err != nil {
			d.close()
			return nil, err
		}
		d.pub = pub
		sink = notify.NewPublishingStore(store, pub, cfg.Redis.Channel, logger.Component("notify"))
	}

	d.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(d.reg)

	registry, err := submission.NewRegistry(generic.New(generic.DefaultConfig(), logger.Component("routine")))
	if err != nil {
		d.close()
		return nil, err
	}

	d.gov, err = governor.New(cfg.Targets)
	if err != nil {
		d.close()
		return nil, errors.Wrap(err, "rate policies")
	}
	d.orch, err = orchestrator.New(cfg.Queue.Config, orchestrator.Deps{
		Governor:   d.gov,
		Sessions:   session.NewManager(driver, logger.Component("session")),
		Interrupts: interrupt.New(),
		Registry:   registry,
		Store:      sink,
		Profile:    submission.MapProfile(cfg.Profile),
		Metrics:    collector,
		Logger:     logger.Component("queue"),
	})
	if err != nil {
		d.close()
		return nil, err
	}

	if err := d.restore(); err != nil {
		d.close()
		return nil, err
	}
	d.srv = server.New(d.orch, cfg.Queue.AutoStart, logger.Component("server"))
	return d, nil
}

// restore loads the last checkpoint. A corrupted file is ignored and
// overwritten by the next checkpoint.
func (d *daemon) restore() error {
	snap, err := d.snaps.Load()
	if errors.Is(err, snapshot.ErrCorruptedSnapshot) {
		d.log.Warnw("Ignoring corrupted queue checkpoint", logger.FieldPath, d.snaps.Path(), logger.FieldError, err)
		return nil
	}
	if err != nil {
		return err
	}
	return d.orch.Restore(snap)
}

func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- errors.Wrap(err, name)
			}
		}()
	}

	start("control service", func(ctx context.Context) error {
		return d.srv.Serve(ctx, d.cfg.Server.Addr)
	})
	if d.cfg.Metrics.Enabled {
		start("metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, d.cfg.Metrics.Addr, d.reg)
		})
	}
	if d.cfgPath != "" {
		w := config.NewWatcher(d.cfgPath, 0, d.reload, logger.Component("config"))
		start("config watcher", w.Run)
	}
	if d.cfg.Snapshot.Interval > 0 {
		start("checkpoint", d.checkpointLoop)
	}

	if d.cfg.Queue.AutoStart && d.orch.Run() {
		d.log.Infow("Restored queue started")
	}
	d.log.Infow("lazyApply running", logger.FieldAddress, d.cfg.Server.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		d.log.Infow("Shutting down")
	case runErr = <-errCh:
		d.log.Errorw("Component failed, shutting down", logger.FieldError, runErr)
	}
	cancel()

	snap := d.orch.Shutdown()
	if err := d.snaps.Write(snap); err != nil {
		d.log.Errorw("Failed to write final checkpoint", logger.FieldError, err)
	} else {
		d.log.Infow("Final checkpoint written", logger.FieldQueueLen, len(snap.Items))
	}
	wg.Wait()
	return runErr
}

// reload applies a changed policy table. Other settings need a restart.
func (d *daemon) reload(cfg *config.Config) error {
	if err := d.gov.SetPolicies(cfg.Targets); err != nil {
		return err
	}
	d.log.Infow("Target policies reloaded", logger.FieldCount, len(cfg.Targets))
	return nil
}

func (d *daemon) checkpointLoop(ctx context.Context) error {
	t := time.NewTicker(d.cfg.Snapshot.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := d.snaps.Write(d.orch.Checkpoint()); err != nil {
				d.log.Warnw("Checkpoint failed", logger.FieldPath, d.snaps.Path(), logger.FieldError, err)
			}
		}
	}
}

func (d *daemon) close() {
	if d.pub != nil {
		if err := d.pub.Close(); err != nil {
			d.log.Warnw("Failed to close publisher", logger.FieldError, err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warnw("Failed to close job store", logger.FieldError, err)
		}
	}
}
