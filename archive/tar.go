// Package archive checks the tar.gz archives downloaded by the backup tasks.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	"deploy.evalgo.org/common"
)

// Summary counts the entries of an archive.
type Summary struct {
	Path  string
	Files int
	Dirs  int
	// Bytes is the uncompressed size of the regular files
	Bytes int64
	// Compressed is the size of the archive on disk
	Compressed int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d files, %d folders, %s (%s compressed)",
		s.Path, s.Files, s.Dirs, humanize.Bytes(uint64(s.Bytes)), humanize.Bytes(uint64(s.Compressed)))
}

// Inspect reads every entry of a .tar.gz file. Entries that would unpack
// outside the target folder make the archive invalid.
func Inspect(file string) (Summary, error) {
	summary := Summary{Path: file}
	f, err := os.Open(file)
	if err != nil {
		return summary, err
	}
	defer f.Close()
	if stat, err := f.Stat(); err == nil {
		summary.Compressed = stat.Size()
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return summary, common.NewTaskError("not a gzip archive: %s: %v", file, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, common.NewTaskError("cannot read archive %s: %v", file, err)
		}
		if !safeName(header.Name) {
			return summary, common.NewTaskError("invalid file path in %s: %s", file, header.Name)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			summary.Dirs++
		case tar.TypeReg:
			summary.Files++
			n, err := io.Copy(io.Discard, tr)
			if err != nil {
				return summary, common.NewTaskError("cannot read %s in %s: %v", header.Name, file, err)
			}
			summary.Bytes += n
		}
	}
	common.Logger.Debug(summary.String())
	return summary, nil
}

func safeName(name string) bool {
	if strings.HasPrefix(name, "/") {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
