package main

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/voidshard/flashd/internal/retention"
	"github.com/voidshard/flashd/pkg/backup"
)

const (
	docBackupCreate  = `Back up config files`
	docBackupList    = `List the backups of a config file`
	docBackupRestore = `Restore a backup over a config file`
	docBackupDelete  = `Delete backups`
	docBackupPrune   = `Apply the retention policy to all backups`
)

type optsBackupStore struct {
	optsGeneral

	BackupDir string `long:"backup-dir" env:"BACKUP_DIR" description:"Directory holding config backups (default: user config dir)"`
}

func (o *optsBackupStore) store() (*backup.Store, error) {
	return backup.New(afero.NewOsFs(), &backup.Options{Root: o.BackupDir}, newLogger(o.optsGeneral))
}

type optsBackupCreate struct {
	optsBackupStore

	Args struct {
		Files []string `positional-arg-name:"config" required:"1"`
	} `positional-args:"true"`
}

func (c *optsBackupCreate) Execute(args []string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	made := []*backup.Backup{}
	for _, f := range c.Args.Files {
		b, err := s.Create(f)
		if err != nil {
			return err
		}
		made = append(made, b)
	}
	return printJson(made)
}

type optsBackupList struct {
	optsBackupStore

	Args struct {
		Subject string `positional-arg-name:"config-name" description:"File name of the config (ie. kitchen.yaml). Lists backed up configs if not given."`
	} `positional-args:"true"`
}

func (c *optsBackupList) Execute(args []string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	if c.Args.Subject == "" {
		subjects, err := s.Subjects()
		if err != nil {
			return err
		}
		return printJson(subjects)
	}
	backups, err := s.List(c.Args.Subject)
	if err != nil {
		return err
	}
	return printJson(backups)
}

type optsBackupRestore struct {
	optsBackupStore

	Args struct {
		Backup string `positional-arg-name:"backup" required:"true"`
		Dest   string `positional-arg-name:"dest" required:"true"`
	} `positional-args:"true"`
}

func (c *optsBackupRestore) Execute(args []string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	src, err := filepath.Abs(c.Args.Backup)
	if err != nil {
		return err
	}
	// the file being replaced is backed up first
	prev, err := s.Restore(src, c.Args.Dest)
	if err != nil {
		return err
	}
	return printJson(prev)
}

type optsBackupDelete struct {
	optsBackupStore

	Args struct {
		Backups []string `positional-arg-name:"backup" required:"1"`
	} `positional-args:"true"`
}

func (c *optsBackupDelete) Execute(args []string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	for _, b := range c.Args.Backups {
		path, err := filepath.Abs(b)
		if err != nil {
			return err
		}
		err = s.Delete(path)
		if err != nil {
			return err
		}
	}
	return nil
}

type optsBackupPrune struct {
	optsBackupStore

	KeepRecent int `long:"keep-recent" env:"KEEP_RECENT" default:"10" description:"Newest backups of each config kept as-is"`
}

func (c *optsBackupPrune) Execute(args []string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	result, err := s.Prune(&retention.Policy{KeepRecent: c.KeepRecent})
	if result != nil {
		printJson(result)
	}
	return err
}
