package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/internal/core"
	"github.com/voidshard/flashd/internal/retention"
	"github.com/voidshard/flashd/pkg/api"
	"github.com/voidshard/flashd/pkg/api/http/server"
	"github.com/voidshard/flashd/pkg/notify"
	"github.com/voidshard/flashd/pkg/queue"
)

const (
	docServe  = `Run the scheduler & serve the API`
	docWorker = `Run the scheduler only`
	docApi    = `Serve the API only`
)

type optsScheduler struct {
	Interval      time.Duration `long:"interval" env:"INTERVAL" default:"30s" description:"How often to look for due jobs"`
	DeployTimeout time.Duration `long:"deploy-timeout" env:"DEPLOY_TIMEOUT" default:"5m" description:"Deploys running longer than this are killed"`
	BuildTimeout  time.Duration `long:"build-timeout" env:"BUILD_TIMEOUT" description:"Builds running longer than this are killed (default: no limit)"`
	TidyFrequency time.Duration `long:"tidy-frequency" env:"TIDY_FREQUENCY" default:"10m" description:"How often orphaned workspaces are removed, negative to disable"`

	PruneSchedule string `long:"prune-schedule" env:"PRUNE_SCHEDULE" default:"@daily" description:"Cron schedule to prune config backups on, empty to disable"`
	KeepRecent    int    `long:"keep-recent" env:"KEEP_RECENT" default:"10" description:"Newest backups of each config kept when pruning"`
}

func (o *optsScheduler) options() *core.SchedulerOptions {
	return &core.SchedulerOptions{
		Interval:      o.Interval,
		DeployTimeout: o.DeployTimeout,
		BuildTimeout:  o.BuildTimeout,
		TidyFrequency: o.TidyFrequency,
	}
}

type optsHTTP struct {
	Addr      string `long:"addr" env:"ADDR" description:"Address to bind to" default:"127.0.0.1:8080"`
	StaticDir string `long:"static-dir" env:"STATIC_DIR" default:"" description:"Serve static files from this directory"`
}

func (o *optsHTTP) server(debug bool, log *zap.Logger) *server.Server {
	return server.NewServer(&api.Options{Addr: o.Addr, Static: o.StaticDir, Debug: debug}, log.Named("api"))
}

type optsServe struct {
	optsGeneral
	optsDatabase
	optsQueue
	optsWorkspace
	optsScheduler
	optsHTTP
}

func (c *optsServe) Execute(args []string) error {
	log := newLogger(c.optsGeneral)
	defer log.Sync()

	store, esphome, err := jobStore(c.optsDatabase, c.optsWorkspace, log)
	if err != nil {
		return err
	}
	defer store.Close()

	observer, q, err := newObserver(&c.optsQueue, log)
	if err != nil {
		return err
	}
	if q != nil {
		defer q.Close()
	}

	sched := core.NewScheduler(store, esphome, esphome, observer, c.options(), log.Named("scheduler"))
	err = sched.Start()
	if err != nil {
		return err
	}
	defer sched.Stop()

	if !c.NoBackup {
		stop, err := startPruner(&c.optsWorkspace, &c.optsScheduler, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	return c.server(c.Debug, log).ServeForever(api.NewAPI(store))
}

type optsWorker struct {
	optsGeneral
	optsDatabase
	optsQueue
	optsWorkspace
	optsScheduler
}

func (c *optsWorker) Execute(args []string) error {
	log := newLogger(c.optsGeneral)
	defer log.Sync()

	store, esphome, err := jobStore(c.optsDatabase, c.optsWorkspace, log)
	if err != nil {
		return err
	}
	defer store.Close()

	observer, q, err := newObserver(&c.optsQueue, log)
	if err != nil {
		return err
	}
	if q != nil {
		defer q.Close()
	}

	sched := core.NewScheduler(store, esphome, esphome, observer, c.options(), log.Named("scheduler"))
	err = sched.Start()
	if err != nil {
		return err
	}

	if !c.NoBackup {
		stop, err := startPruner(&c.optsWorkspace, &c.optsScheduler, log)
		if err != nil {
			sched.Stop()
			return err
		}
		defer stop()
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt)
	<-exit

	return sched.Stop()
}

type optsAPI struct {
	optsGeneral
	optsDatabase
	optsWorkspace
	optsHTTP
}

func (c *optsAPI) Execute(args []string) error {
	// Jobs created here are dispatched by whichever worker shares the database &
	// workspace directory.
	log := newLogger(c.optsGeneral)
	defer log.Sync()

	store, _, err := jobStore(c.optsDatabase, c.optsWorkspace, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.server(c.Debug, log).ServeForever(api.NewAPI(store))
}

// newObserver logs job events & forwards them to the queue, if one is configured
func newObserver(o *optsQueue, log *zap.Logger) (notify.Observer, *queue.Asynq, error) {
	logs := notify.NewLog(log.Named("events"))

	q, err := o.queue()
	if err != nil {
		return nil, nil, err
	}
	if q == nil {
		return logs, nil, nil
	}
	return notify.Multi{logs, notify.NewQueue(q, log.Named("queue"))}, q, nil
}

// startPruner prunes config backups on the given cron schedule. The returned func
// stops it, waiting for a running prune to finish.
func startPruner(w *optsWorkspace, s *optsScheduler, log *zap.Logger) (func(), error) {
	if s.PruneSchedule == "" {
		return func() {}, nil
	}

	backups, err := w.backups(afero.NewOsFs(), log)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(s.PruneSchedule, func() {
		result, err := backups.Prune(&retention.Policy{KeepRecent: s.KeepRecent})
		if err != nil {
			log.Warn("backup prune finished with errors", zap.Error(err))
		}
		if result != nil {
			log.Info("pruned backups",
				zap.Int("kept", result.Kept),
				zap.Int("renamed", result.Renamed),
				zap.Int("deleted", result.Deleted),
				zap.Int("failed", result.Failed),
			)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()

	return func() { <-c.Stop().Done() }, nil
}
