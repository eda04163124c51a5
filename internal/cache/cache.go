package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/internal/utils"
	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/toolchain"
)

const (
	dirPermission = 0755

	// buried workspaces are renamed with this prefix until their job's deletion commits
	trashPrefix = ".trash-"

	// workspaces are staged under this prefix until their job is recorded
	stagingPrefix = ".staging-"

	// compiled artifacts live under this dir of a workspace
	buildDir = "build"
)

// Options for the artifact cache
type Options struct {
	// Root directory holding one sub directory per workspace.
	// Defaults to <user cache dir>/flashd/workspaces
	Root string
}

func (o *Options) SetDefaults() {
	if o.Root == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		o.Root = filepath.Join(base, "flashd", "workspaces")
	}
}

// Workspace is an isolated directory holding a job's staged config, the files it
// references and (eventually) it's compiled firmware.
type Workspace struct {
	ID  string
	Dir string

	// Source is the staged copy of the config
	Source string
}

// Cache manages job workspaces
type Cache struct {
	fs   afero.Fs
	root string
	deps toolchain.DependencyExtractor
	log  *zap.Logger
}

// New returns a cache rooted at opts.Root. deps may be nil, in which case only the
// config itself is staged.
func New(fs afero.Fs, opts *Options, deps toolchain.DependencyExtractor, log *zap.Logger) (*Cache, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	err := fs.MkdirAll(opts.Root, dirPermission)
	if err != nil {
		return nil, fmt.Errorf("%w creating workspace root %s: %v", errors.ErrStorage, opts.Root, err)
	}

	return &Cache{fs: fs, root: opts.Root, deps: deps, log: log}, nil
}

// Stage creates a fresh workspace & copies sourcePath into it, along with every file
// the config references (keeping their layout relative to the config).
//
// Referenced files that don't exist are skipped, as are references outside of the
// config's directory.
func (c *Cache) Stage(sourcePath string) (*Workspace, error) {
	ws, err := c.Prepare(sourcePath)
	if err != nil {
		return nil, err
	}
	err = c.Commit(ws.ID)
	if err != nil {
		c.Discard(ws.ID)
		return nil, err
	}
	return ws, nil
}

// Prepare stages a workspace like Stage, but leaves it hidden from List & Exists until
// it's Commit(ed). The returned paths are where the files will be once committed.
func (c *Cache) Prepare(sourcePath string) (*Workspace, error) {
	info, err := c.fs.Stat(sourcePath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w %s", errors.ErrSourceNotFound, sourcePath)
	}

	ws := &Workspace{ID: utils.NewRandomID()}
	ws.Dir = c.dir(ws.ID)
	ws.Source = filepath.Join(ws.Dir, filepath.Base(sourcePath))

	staging := c.staging(ws.ID)
	err = utils.CopyFile(c.fs, sourcePath, filepath.Join(staging, filepath.Base(sourcePath)))
	if err != nil {
		c.fs.RemoveAll(staging)
		return nil, fmt.Errorf("%w staging %s: %v", errors.ErrStorage, sourcePath, err)
	}

	if c.deps == nil {
		return ws, nil
	}

	refs, err := c.deps.Dependencies(sourcePath)
	if err != nil {
		c.log.Warn("failed to read config dependencies", zap.String("path", sourcePath), zap.Error(err))
	}

	srcDir := filepath.Dir(sourcePath)
	for _, ref := range refs {
		rel, ok := utils.CleanRelative(ref)
		if !ok {
			c.log.Warn("skipping reference outside config dir", zap.String("path", ref), zap.String("workspace", ws.ID))
			continue
		}

		src := filepath.Join(srcDir, rel)
		info, err := c.fs.Stat(src)
		if err != nil || info.IsDir() {
			c.log.Debug("skipping missing reference", zap.String("path", src), zap.String("workspace", ws.ID))
			continue
		}

		err = utils.CopyFile(c.fs, src, filepath.Join(staging, rel))
		if err != nil {
			c.fs.RemoveAll(staging)
			return nil, fmt.Errorf("%w staging %s: %v", errors.ErrStorage, src, err)
		}
	}

	return ws, nil
}

// Commit makes a prepared workspace live
func (c *Cache) Commit(workspaceID string) error {
	if !utils.IsValidID(workspaceID) {
		return fmt.Errorf("%w workspace id %s", errors.ErrInvalidArg, workspaceID)
	}
	err := c.fs.Rename(c.staging(workspaceID), c.dir(workspaceID))
	if err != nil {
		return fmt.Errorf("%w committing workspace %s: %v", errors.ErrStorage, workspaceID, err)
	}
	return nil
}

// StoreCompiled copies a built artifact into the workspace and returns it's new path.
func (c *Cache) StoreCompiled(workspaceID, builtPath string) (string, error) {
	if !utils.IsValidID(workspaceID) {
		return "", fmt.Errorf("%w workspace id %s", errors.ErrInvalidArg, workspaceID)
	}

	dst := filepath.Join(c.dir(workspaceID), buildDir, filepath.Base(builtPath))
	err := utils.CopyFile(c.fs, builtPath, dst)
	if err != nil {
		return "", fmt.Errorf("%w storing artifact %s: %v", errors.ErrStorage, builtPath, err)
	}
	return dst, nil
}

// Discard removes a workspace, buried, prepared or live. Removing a workspace that
// doesn't exist is not an error.
func (c *Cache) Discard(workspaceID string) error {
	if !utils.IsValidID(workspaceID) {
		return fmt.Errorf("%w workspace id %s", errors.ErrInvalidArg, workspaceID)
	}
	for _, p := range []string{c.dir(workspaceID), c.trash(workspaceID), c.staging(workspaceID)} {
		err := c.fs.RemoveAll(p)
		if err != nil {
			return fmt.Errorf("%w removing %s: %v", errors.ErrStorage, p, err)
		}
	}
	return nil
}

// Bury moves a workspace out of the way without deleting it, so it can be restored
// with Unbury or removed for good with Discard.
func (c *Cache) Bury(workspaceID string) error {
	if !utils.IsValidID(workspaceID) {
		return fmt.Errorf("%w workspace id %s", errors.ErrInvalidArg, workspaceID)
	}
	ok, err := afero.DirExists(c.fs, c.dir(workspaceID))
	if err != nil {
		return fmt.Errorf("%w %v", errors.ErrStorage, err)
	}
	if !ok {
		return nil
	}
	err = c.fs.Rename(c.dir(workspaceID), c.trash(workspaceID))
	if err != nil {
		return fmt.Errorf("%w burying workspace %s: %v", errors.ErrStorage, workspaceID, err)
	}
	return nil
}

// Unbury restores a buried workspace
func (c *Cache) Unbury(workspaceID string) error {
	if !utils.IsValidID(workspaceID) {
		return fmt.Errorf("%w workspace id %s", errors.ErrInvalidArg, workspaceID)
	}
	ok, err := afero.DirExists(c.fs, c.trash(workspaceID))
	if err != nil {
		return fmt.Errorf("%w %v", errors.ErrStorage, err)
	}
	if !ok {
		return nil
	}
	err = c.fs.Rename(c.trash(workspaceID), c.dir(workspaceID))
	if err != nil {
		return fmt.Errorf("%w restoring workspace %s: %v", errors.ErrStorage, workspaceID, err)
	}
	return nil
}

// List returns the ids of live & buried workspaces. Prepared workspaces aren't listed.
func (c *Cache) List() ([]string, []string, error) {
	infos, err := afero.ReadDir(c.fs, c.root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w listing %s: %v", errors.ErrStorage, c.root, err)
	}

	live, buried := []string{}, []string{}
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		name := info.Name()
		if strings.HasPrefix(name, trashPrefix) {
			name = strings.TrimPrefix(name, trashPrefix)
			if utils.IsValidID(name) {
				buried = append(buried, name)
			}
			continue
		}
		if utils.IsValidID(name) {
			live = append(live, name)
		}
	}
	return live, buried, nil
}

// Abandoned returns the ids of prepared workspaces last touched more than maxAge ago,
// ie. never committed.
func (c *Cache) Abandoned(maxAge time.Duration) ([]string, error) {
	infos, err := afero.ReadDir(c.fs, c.root)
	if err != nil {
		return nil, fmt.Errorf("%w listing %s: %v", errors.ErrStorage, c.root, err)
	}

	cutoff := time.Now().Add(-maxAge)
	out := []string{}
	for _, info := range infos {
		name := info.Name()
		if !info.IsDir() || !strings.HasPrefix(name, stagingPrefix) {
			continue
		}
		name = strings.TrimPrefix(name, stagingPrefix)
		if utils.IsValidID(name) && info.ModTime().Before(cutoff) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Exists returns if the workspace is live
func (c *Cache) Exists(workspaceID string) bool {
	if !utils.IsValidID(workspaceID) {
		return false
	}
	ok, _ := afero.DirExists(c.fs, c.dir(workspaceID))
	return ok
}

func (c *Cache) dir(workspaceID string) string {
	return filepath.Join(c.root, workspaceID)
}

func (c *Cache) trash(workspaceID string) string {
	return filepath.Join(c.root, trashPrefix+workspaceID)
}

func (c *Cache) staging(workspaceID string) string {
	return filepath.Join(c.root, stagingPrefix+workspaceID)
}
