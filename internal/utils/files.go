package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const dirPermission = 0755

// CopyFile copies src to dst on the given filesystem, creating dst's parent
// directories and keeping src's file mode.
func CopyFile(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}

	err = fs.MkdirAll(filepath.Dir(dst), dirPermission)
	if err != nil {
		return err
	}

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CleanRelative returns a cleaned relative path, or false if the path is absolute or
// would escape the directory it's relative to.
func CleanRelative(p string) (string, bool) {
	if p == "" || filepath.IsAbs(p) {
		return "", false
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return clean, true
}
