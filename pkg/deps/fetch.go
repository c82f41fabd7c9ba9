package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/numpy/ironsetup/pkg/buildlog"
)

// Fetcher downloads and extracts dependencies below Root
type Fetcher struct {
	Root   string
	Client *http.Client

	// Update records mismatching checksums instead of failing and also downloads dependencies whose conditions
	// don't apply to this platform
	Update bool
	// HideProgress disables the progress bars (always hidden on CI)
	HideProgress bool
}

// NewFetcher returns a fetcher with the default HTTP client
func NewFetcher(root string) *Fetcher {
	return &Fetcher{
		Root: root,
		Client: &http.Client{
			Timeout: time.Minute * 30,
		},
	}
}

func (f *Fetcher) progressBar(length int64, desc string) *progressbar.ProgressBar {
	if f.HideProgress || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// Fetch processes every dependency in cfg. stamps is updated in place for every extracted archive and the new
// checksums found in update mode are returned.
func (f *Fetcher) Fetch(ctx context.Context, cfg *Config, stamps Stamps) (map[string]string, error) {
	vars := cfg.EvalVars()
	changes := map[string]string{}

	names := make([]string, 0, len(cfg.Deps))
	for name := range cfg.Deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		// the conditions are evaluated even in update mode to resolve the URL placeholders
		meta, applies := cfg.Deps[name].Resolve(vars)
		if !applies && !f.Update {
			continue
		}

		destPath := filepath.Join(f.Root, meta.Dest)
		_, err := os.Stat(destPath)
		destExists := err == nil

		if stamp, ok := stamps[name]; ok && stamp == meta.Token() && destExists {
			buildlog.Log(ctx).Debug().Str("step", name).Msg("Up to date")
			continue
		}

		checksum, err := f.fetchOne(ctx, name, meta, applies, destExists)
		if err != nil {
			return changes, err
		}

		if checksum != meta.Sha256 {
			changes[name] = checksum
		}

		if applies {
			meta.Sha256 = checksum
			stamps[name] = meta.Token()
		}
	}

	return changes, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, name string, meta Spec, extract, destExists bool) (string, error) {
	log := buildlog.Log(ctx)
	log.Info().Str("step", name).Msg(meta.URL)

	if meta.Sha256 == "" && !f.Update {
		return "", eris.Errorf("Dependency %s doesn't have a checksum", name)
	}

	var extractor archiveExtractor
	if extract {
		var err error
		extractor, err = getExtractor(meta.URL)
		if err != nil {
			return "", eris.Wrapf(err, "can't extract %s", name)
		}
	}

	arHandle, err := os.CreateTemp("", "ironsetup-deps-*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "Failed to create temporary download file")
	}
	defer func() {
		arHandle.Close()
		os.Remove(arHandle.Name())
	}()

	length, digest, err := f.download(ctx, meta.URL, arHandle)
	if err != nil {
		return "", err
	}

	if digest != meta.Sha256 {
		if !f.Update {
			return "", eris.Errorf("Checksum check failed for %s: expected %s but got %s", name, meta.Sha256, digest)
		}
		log.Warn().Str("step", name).Msgf("Updating checksum to %s", digest)
	}

	if !extract {
		return digest, nil
	}

	destPath := filepath.Join(f.Root, meta.Dest)
	if destExists {
		log.Info().Str("step", name).Msgf("Remove %s", destPath)
		if err = os.RemoveAll(destPath); err != nil {
			return "", eris.Wrapf(err, "Failed to remove %s", destPath)
		}
	}

	if _, err = arHandle.Seek(0, io.SeekStart); err != nil {
		return "", eris.Wrap(err, "Failed to rewind the download")
	}

	bar := f.progressBar(length, "      extract")
	if err = extractor(arHandle, bar, destPath, meta); err != nil {
		return "", eris.Wrapf(err, "Failed to extract %s", name)
	}
	bar.Finish()

	if runtime.GOOS != "windows" {
		// .zip files don't carry permissions
		for _, binPath := range meta.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return "", eris.Wrapf(err, "Failed to read permissions for %s", binPath)
			}

			if err = os.Chmod(binPath, fi.Mode()|0o700); err != nil {
				return "", eris.Wrapf(err, "Failed to mark %s as executable", binPath)
			}
		}
	}

	return digest, nil
}

// download writes the response body for url to dest and returns its size and SHA-256 digest
func (f *Fetcher) download(ctx context.Context, url string, dest io.Writer) (int64, string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", eris.Wrapf(err, "Invalid URL %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", eris.Errorf("Download of %s failed with status %s", url, resp.Status)
	}

	hash := sha256.New()
	bar := f.progressBar(resp.ContentLength, "     download")
	size, err := io.Copy(io.MultiWriter(dest, hash, bar), resp.Body)
	if err != nil {
		return 0, "", eris.Wrapf(err, "Failed during download of %s", url)
	}
	bar.Finish()

	return size, hex.EncodeToString(hash.Sum(nil)), nil
}
