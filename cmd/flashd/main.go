package main

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/internal/cache"
	"github.com/voidshard/flashd/internal/core"
	"github.com/voidshard/flashd/internal/utils"
	"github.com/voidshard/flashd/pkg/backup"
	"github.com/voidshard/flashd/pkg/database"
	"github.com/voidshard/flashd/pkg/queue"
	"github.com/voidshard/flashd/pkg/toolchain"
)

type optsGeneral struct {
	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type optsDatabase struct {
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Database connection string, sqlite:///path/flashd.db or postgres://... (default: sqlite in the user config dir)"`
}

type optsQueue struct {
	QueueURL       string `long:"queue-url" env:"QUEUE_URL" description:"Redis address to publish job events to (host:port). Events are only logged if unset."`
	QueueTLSCaCert string `long:"queue-tls-ca-cert" env:"QUEUE_TLS_CA_CERT" description:"Path to queue TLS CA certificate"`
	QueueTLSCert   string `long:"queue-tls-cert" env:"QUEUE_TLS_CERT" description:"Path to queue TLS certificate"`
	QueueTLSKey    string `long:"queue-tls-key" env:"QUEUE_TLS_KEY" description:"Path to queue TLS key"`
}

type optsWorkspace struct {
	WorkspaceDir string            `long:"workspace-dir" env:"WORKSPACE_DIR" description:"Directory holding job workspaces (default: user cache dir)"`
	BackupDir    string            `long:"backup-dir" env:"BACKUP_DIR" description:"Directory holding config backups (default: user config dir)"`
	NoBackup     bool              `long:"no-backup" env:"NO_BACKUP" description:"Don't back up configs when jobs are created"`
	ESPHome      string            `long:"esphome" env:"ESPHOME" default:"esphome" description:"esphome executable"`
	Versions     map[string]string `long:"builder" description:"Builder id to esphome executable, ie. --builder 2024.6:/opt/esphome-2024.6/bin/esphome"`
}

func main() {
	parser := flags.NewParser(nil, flags.Default)
	parser.ShortDescription = "flashd"
	parser.LongDescription = "Schedule firmware builds & deploys for esphome devices"

	parser.AddCommand("serve", docServe, docServe, &optsServe{})
	parser.AddCommand("worker", docWorker, docWorker, &optsWorker{})
	parser.AddCommand("api", docApi, docApi, &optsAPI{})
	parser.AddCommand("events", docEvents, docEvents, &optsEvents{})

	job, _ := parser.AddCommand("job", "Manage jobs", "Manage jobs through a running flashd API", &struct{}{})
	job.AddCommand("create", docJobCreate, docJobCreate, &optsJobCreate{})
	job.AddCommand("list", docJobList, docJobList, &optsJobList{})
	job.AddCommand("get", docJobGet, docJobGet, &optsJobGet{})
	job.AddCommand("delete", docJobDelete, docJobDelete, &optsJobDelete{})
	job.AddCommand("reschedule", docJobReschedule, docJobReschedule, &optsJobReschedule{})

	bkp, _ := parser.AddCommand("backup", "Manage config backups", "Manage config backups", &struct{}{})
	bkp.AddCommand("create", docBackupCreate, docBackupCreate, &optsBackupCreate{})
	bkp.AddCommand("list", docBackupList, docBackupList, &optsBackupList{})
	bkp.AddCommand("restore", docBackupRestore, docBackupRestore, &optsBackupRestore{})
	bkp.AddCommand("delete", docBackupDelete, docBackupDelete, &optsBackupDelete{})
	bkp.AddCommand("prune", docBackupPrune, docBackupPrune, &optsBackupPrune{})

	if _, err := parser.Parse(); err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		default:
			os.Exit(1)
		}
	}
}

func newLogger(g optsGeneral) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if g.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func (o *optsDatabase) open() (*database.SQLDB, error) {
	u := o.DatabaseURL
	if u == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(base, "flashd")
		err = os.MkdirAll(dir, 0750)
		if err != nil {
			return nil, err
		}
		u = "sqlite://" + filepath.Join(dir, "flashd.db")
	}
	return database.New(&database.Options{URL: u})
}

// queue returns nil if no queue is configured
func (o *optsQueue) queue() (*queue.Asynq, error) {
	if o.QueueURL == "" {
		return nil, nil
	}
	files := &utils.TLSFiles{CACert: o.QueueTLSCaCert, Cert: o.QueueTLSCert, Key: o.QueueTLSKey}
	tlsCfg, err := files.Config(afero.NewOsFs(), o.QueueURL)
	if err != nil {
		return nil, err
	}
	return queue.NewAsynqQueue(&queue.Options{URL: o.QueueURL, TLSConfig: tlsCfg})
}

func (o *optsWorkspace) toolchain(fs afero.Fs, log *zap.Logger) *toolchain.ESPHome {
	return toolchain.NewESPHome(fs, &toolchain.Options{Executable: o.ESPHome, Versions: o.Versions}, log.Named("esphome"))
}

func (o *optsWorkspace) backups(fs afero.Fs, log *zap.Logger) (*backup.Store, error) {
	return backup.New(fs, &backup.Options{Root: o.BackupDir}, log.Named("backup"))
}

// jobStore opens everything a JobStore needs. The returned toolchain builds & deploys.
func jobStore(d optsDatabase, w optsWorkspace, log *zap.Logger) (*core.JobStore, *toolchain.ESPHome, error) {
	fs := afero.NewOsFs()

	db, err := d.open()
	if err != nil {
		return nil, nil, err
	}

	ws, err := cache.New(fs, &cache.Options{Root: w.WorkspaceDir}, toolchain.NewYAMLExtractor(fs), log.Named("cache"))
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	esphome := w.toolchain(fs, log)
	opts := &core.JobStoreOptions{Builder: esphome, Logger: log.Named("jobs")}
	if !w.NoBackup {
		opts.Backups, err = w.backups(fs, log)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return core.NewJobStore(db, ws, opts), esphome, nil
}
