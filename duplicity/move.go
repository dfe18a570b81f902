package duplicity

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// rename is replaced in tests to simulate a move across filesystems.
var rename = os.Rename

// replaceFolder moves from into place at to. An existing to is renamed
// aside first and only removed once the new folder is in place; if the
// move fails it is put back.
func replaceFolder(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	aside := ""
	if _, err := os.Lstat(to); err == nil {
		aside = fmt.Sprintf("%s.old-%s", to, time.Now().Format("20060102_150405.000000000"))
		if err := rename(to, aside); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", to, err)
		}
	}
	if err := move(from, to); err != nil {
		if aside != "" {
			os.RemoveAll(to)
			if restoreErr := rename(aside, to); restoreErr != nil {
				return fmt.Errorf("failed to move %s: %w (previous folder left at %s)", from, err, aside)
			}
		}
		return fmt.Errorf("failed to move %s: %w", from, err)
	}
	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			return fmt.Errorf("failed to remove %s: %w", aside, err)
		}
	}
	return nil
}

// move renames from to to, copying then removing when they are on
// different filesystems.
func move(from, to string) error {
	err := rename(from, to)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyTree(from, to); err != nil {
		os.RemoveAll(to)
		return err
	}
	return os.RemoveAll(from)
}

func copyTree(from, to string) error {
	return filepath.WalkDir(from, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		}
		return fmt.Errorf("cannot copy %s: unsupported file type", path)
	})
}

func copyFile(from, to string, mode fs.FileMode) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(to, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
