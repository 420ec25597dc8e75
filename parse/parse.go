package parse

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"tidbyt.dev/transit/model"
)

// Opens a feed table by file name. Returns nil if the feed doesn't
// have the table.
type tableOpener func(name string) (io.ReadCloser, error)

// Compiles a zipped feed and finishes the store with the given feed
// version.
func CompileZip(c *Compiler, buf []byte, feedVersion string, progress Progress) error {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return errors.Wrap(err, "unzipping")
	}

	files := map[string]*zip.File{}
	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		files[path[len(path)-1]] = f
	}

	return compileTables(c, func(name string) (io.ReadCloser, error) {
		f, found := files[name]
		if !found {
			return nil, nil
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", f.Name)
		}
		return rc, nil
	}, feedVersion, progress)
}

// Compiles a feed stored as a directory of tables.
func CompileDir(c *Compiler, dir string, feedVersion string, progress Progress) error {
	return compileTables(c, func(name string) (io.ReadCloser, error) {
		f, err := os.Open(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", name)
		}
		return f, nil
	}, feedVersion, progress)
}

func compileTables(c *Compiler, open tableOpener, feedVersion string, progress Progress) error {
	for _, kind := range model.CompileOrder {
		rc, err := open(kind.Table())
		if err != nil {
			return err
		}

		if rc == nil {
			// Exceptions are optional. Everything else is
			// needed for a consistent store.
			if kind == model.KindCalendarException {
				c.logger.Info().Str("table", kind.Table()).Msg("table not in feed, skipping")
				continue
			}
			return errors.Wrapf(ErrMissingRequiredTable, "%s", kind.Table())
		}

		err = c.Compile(kind, rc, progress)
		rc.Close()
		if err != nil {
			return errors.Wrapf(err, "compiling %s", kind.Table())
		}
	}

	return c.Finish(feedVersion)
}
