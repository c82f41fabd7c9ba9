package deps

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

type archiveExtractor func(f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error

// extractorDest strips ds.Strip leading elements from item and returns where it should be extracted to. An
// empty result means the item should be skipped.
func extractorDest(destPath string, item string, ds Spec) (string, error) {
	pathParts := strings.Split(filepath.Clean(filepath.FromSlash(item)), string(filepath.Separator))
	if len(pathParts) <= ds.Strip {
		return "", nil
	}

	dest := filepath.Join(destPath, strings.Join(pathParts[ds.Strip:], string(filepath.Separator)))
	if dest == destPath {
		return "", nil
	}

	if !strings.HasPrefix(dest, destPath+string(filepath.Separator)) {
		return "", eris.Errorf("archive entry %s points outside of %s", item, destPath)
	}

	return dest, nil
}

// checkLinkTarget rejects symlink targets that are absolute or resolve outside of destPath
func checkLinkTarget(destPath, dest, target string) error {
	if filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return eris.Errorf("symlink %s points to the absolute path %s", dest, target)
	}

	resolved := filepath.Join(filepath.Dir(dest), filepath.FromSlash(target))
	if resolved != destPath && !strings.HasPrefix(resolved, destPath+string(filepath.Separator)) {
		return eris.Errorf("symlink %s points outside of %s", dest, destPath)
	}

	return nil
}

func openExtractorDest(dest string, mode os.FileMode) (*os.File, error) {
	destParent := filepath.Dir(dest)
	if err := os.MkdirAll(destParent, 0o770); err != nil {
		return nil, eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, nil
}

// progressWriter moves the bar to the current position of the archive file
type progressWriter struct {
	f   *os.File
	bar *progressbar.ProgressBar
}

func (w progressWriter) Write(p []byte) (int, error) {
	if pos, err := w.f.Seek(0, io.SeekCurrent); err == nil {
		w.bar.Set64(pos)
	}
	return len(p), nil
}

func getExtractor(url string) (archiveExtractor, error) {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destPath, ds)
		}, nil
	case strings.HasSuffix(url, ".tar.bz2"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error {
			return extractTar(bzip2.NewReader(f), f, bar, destPath, ds)
		}, nil
	case strings.HasSuffix(url, ".tar.xz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, f, bar, destPath, ds)
		}, nil
	}

	return nil, eris.Errorf("Archive format of %s not supported", url)
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	progress := progressWriter{f: f, bar: bar}
	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		dest, err := extractorDest(destPath, item.Name, ds)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		if err = extractZipEntry(item, dest, progress); err != nil {
			return err
		}
	}

	return nil
}

func extractZipEntry(item *zip.File, dest string, progress io.Writer) error {
	destHandle, err := openExtractorDest(dest, 0o660)
	if err != nil {
		return err
	}
	defer destHandle.Close()

	itemHandle, err := item.Open()
	if err != nil {
		return eris.Wrap(err, "Failed to open archive entry")
	}
	defer itemHandle.Close()

	if _, err = io.Copy(io.MultiWriter(destHandle, progress), itemHandle); err != nil {
		return eris.Wrapf(err, "Failed to extract archive entry %s", item.Name)
	}

	return destHandle.Close()
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, ds Spec) error {
	archive := tar.NewReader(r)
	progress := progressWriter{f: f, bar: bar}

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		dest, err := extractorDest(destPath, item.Name, ds)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		switch item.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(dest, 0o770); err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", dest)
			}
		case tar.TypeSymlink:
			if err = checkLinkTarget(destPath, dest, item.Linkname); err != nil {
				return err
			}

			if err = os.MkdirAll(filepath.Dir(dest), 0o770); err != nil {
				return eris.Wrapf(err, "Failed to create directory for %s", dest)
			}

			if err = os.Symlink(item.Linkname, dest); err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
		case tar.TypeReg:
			destHandle, err := openExtractorDest(dest, item.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}

			_, err = io.Copy(io.MultiWriter(destHandle, progress), archive)
			destHandle.Close()
			if err != nil {
				return eris.Wrapf(err, "Failed to extract archive entry %s", item.Name)
			}
		}
	}

	return nil
}
