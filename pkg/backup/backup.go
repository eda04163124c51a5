package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/internal/retention"
	"github.com/voidshard/flashd/internal/utils"
	"github.com/voidshard/flashd/pkg/errors"
)

const (
	dirPermission = 0755

	// backups are named <file>.<timestamp>[.<tag>]
	timeFormat = "20060102_150405"
)

// Options for a backup store
type Options struct {
	// Root holds one directory per backed up file (ie. <root>/kitchen.yaml/).
	// Defaults to <user config dir>/flashd/backups
	Root string
}

func (o *Options) SetDefaults() {
	if o.Root == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		o.Root = filepath.Join(base, "flashd", "backups")
	}
}

// Backup is one timestamped copy of a config file
type Backup struct {
	// Subject is the name of the file backed up (ie. kitchen.yaml)
	Subject string `json:"subject"`

	// Path to the backup on disk
	Path string `json:"path"`

	// Name is the backup's file name without any retention tag
	Name string `json:"name"`

	Time time.Time     `json:"time"`
	Tag  retention.Tag `json:"tag,omitempty"`
}

// Store keeps timestamped backups of config files & prunes them with a
// retention policy.
type Store struct {
	fs   afero.Fs
	root string
	log  *zap.Logger

	now func() time.Time
}

func New(fs afero.Fs, opts *Options, log *zap.Logger) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	err := fs.MkdirAll(opts.Root, dirPermission)
	if err != nil {
		return nil, fmt.Errorf("%w creating backup root %s: %v", errors.ErrStorage, opts.Root, err)
	}
	return &Store{fs: fs, root: opts.Root, log: log, now: time.Now}, nil
}

// Create copies file into the store under <root>/<base name>/<base name>.<timestamp>
func (s *Store) Create(file string) (*Backup, error) {
	subject := filepath.Base(file)
	ts := s.now().Truncate(time.Second)
	name := fmt.Sprintf("%s.%s", subject, ts.Format(timeFormat))

	b := &Backup{
		Subject: subject,
		Path:    filepath.Join(s.root, subject, name),
		Name:    name,
		Time:    ts,
	}
	err := utils.CopyFile(s.fs, file, b.Path)
	if err != nil {
		return nil, fmt.Errorf("%w backing up %s: %v", errors.ErrStorage, file, err)
	}

	s.log.Debug("created backup", zap.String("path", b.Path))
	return b, nil
}

// Subjects returns the names of every file with backups
func (s *Store) Subjects() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("%w listing %s: %v", errors.ErrStorage, s.root, err)
	}
	out := []string{}
	for _, info := range infos {
		if info.IsDir() {
			out = append(out, info.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// List returns the backups of one file, newest first. Files that aren't
// backups are ignored.
func (s *Store) List(subject string) ([]*Backup, error) {
	if subject != filepath.Base(subject) || subject == "." || subject == ".." {
		return nil, fmt.Errorf("%w subject %s", errors.ErrInvalidArg, subject)
	}
	dir := filepath.Join(s.root, subject)

	infos, err := afero.ReadDir(s.fs, dir)
	if os.IsNotExist(err) {
		return []*Backup{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w listing %s: %v", errors.ErrStorage, dir, err)
	}

	out := []*Backup{}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name, ts, tag, ok := parseName(info.Name())
		if !ok {
			continue
		}
		out = append(out, &Backup{
			Subject: subject,
			Path:    filepath.Join(dir, info.Name()),
			Name:    name,
			Time:    ts,
			Tag:     tag,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Restore copies a backup over dest. Whatever is at dest is backed up first.
func (s *Store) Restore(backupPath, dest string) (*Backup, error) {
	err := s.checkPath(backupPath)
	if err != nil {
		return nil, err
	}

	ok, err := afero.Exists(s.fs, dest)
	if err != nil {
		return nil, fmt.Errorf("%w %v", errors.ErrStorage, err)
	}
	var saved *Backup
	if ok {
		saved, err = s.Create(dest)
		if err != nil {
			return nil, err
		}
	}

	err = utils.CopyFile(s.fs, backupPath, dest)
	if err != nil {
		return nil, fmt.Errorf("%w restoring %s: %v", errors.ErrStorage, backupPath, err)
	}
	return saved, nil
}

// Delete removes a single backup
func (s *Store) Delete(backupPath string) error {
	err := s.checkPath(backupPath)
	if err != nil {
		return err
	}
	err = s.fs.Remove(backupPath)
	if err != nil {
		return fmt.Errorf("%w deleting %s: %v", errors.ErrStorage, backupPath, err)
	}
	return nil
}

// Prune runs a retention pass over the backups of every subject.
//
// One subject failing doesn't stop the others; all errors are returned together.
func (s *Store) Prune(policy *retention.Policy) (*retention.Result, error) {
	subjects, err := s.Subjects()
	if err != nil {
		return nil, err
	}

	pruner := retention.NewPruner(policy, s.log)
	total := &retention.Result{}
	var errs error

	for _, subject := range subjects {
		backups, err := s.List(subject)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		artifacts := []retention.Artifact{}
		for _, b := range backups {
			artifacts = append(artifacts, retention.Artifact{Name: b.Name, Time: b.Time, Tag: b.Tag})
		}

		result, err := pruner.Prune(&subjectStore{store: s, dir: filepath.Join(s.root, subject)}, artifacts)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		total.Kept += result.Kept
		total.Renamed += result.Renamed
		total.Deleted += result.Deleted
		total.Failed += result.Failed

		s.log.Info("pruned backups",
			zap.String("subject", subject),
			zap.Int("kept", result.Kept),
			zap.Int("renamed", result.Renamed),
			zap.Int("deleted", result.Deleted),
		)
	}

	return total, errs
}

// checkPath errors if path is not a backup inside the store
func (s *Store) checkPath(path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return fmt.Errorf("%w %s is not a backup", errors.ErrInvalidArg, path)
	}
	rel, ok := utils.CleanRelative(rel)
	if !ok || len(strings.Split(rel, string(filepath.Separator))) != 2 {
		return fmt.Errorf("%w %s is not a backup", errors.ErrInvalidArg, path)
	}
	if _, _, _, ok := parseName(filepath.Base(rel)); !ok {
		return fmt.Errorf("%w %s is not a backup", errors.ErrInvalidArg, path)
	}
	return nil
}

// subjectStore applies retention decisions to one subject's directory
type subjectStore struct {
	store *Store
	dir   string
}

func (b *subjectStore) Delete(a retention.Artifact) error {
	return b.store.fs.Remove(filepath.Join(b.dir, fileName(a.Name, a.Tag)))
}

func (b *subjectStore) Rename(a retention.Artifact, to retention.Tag) error {
	return b.store.fs.Rename(
		filepath.Join(b.dir, fileName(a.Name, a.Tag)),
		filepath.Join(b.dir, fileName(a.Name, to)),
	)
}

// fileName returns the name of a backup carrying the given tag
func fileName(name string, tag retention.Tag) string {
	if tag == retention.TagNone {
		return name
	}
	return fmt.Sprintf("%s.%s", name, tag)
}

// parseName splits <file>.<timestamp>[.<tag>] into the untagged name, time & tag.
// Timestamps are local time.
func parseName(in string) (string, time.Time, retention.Tag, bool) {
	parts := strings.Split(in, ".")
	if len(parts) < 3 {
		return "", time.Time{}, retention.TagNone, false
	}

	name := in
	ts := parts[len(parts)-1]
	tag, tagged := retention.ToTag(ts)
	if tagged {
		if len(parts) < 4 {
			return "", time.Time{}, retention.TagNone, false
		}
		ts = parts[len(parts)-2]
		name = strings.Join(parts[:len(parts)-1], ".")
	}

	t, err := time.ParseInLocation(timeFormat, ts, time.Local)
	if err != nil {
		return "", time.Time{}, retention.TagNone, false
	}
	return name, t, tag, true
}
