package deps

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveFile struct {
	name    string
	content string
	mode    int64
	link    string
}

func tarGz(t *testing.T, files []archiveFile) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)
	for _, file := range files {
		mode := file.mode
		if mode == 0 {
			mode = 0o644
		}

		if file.link != "" {
			require.NoError(t, tw.WriteHeader(&tar.Header{
				Name:     file.name,
				Mode:     0o777,
				Linkname: file.link,
				Typeflag: tar.TypeSymlink,
			}))
			continue
		}

		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     file.name,
			Mode:     mode,
			Size:     int64(len(file.content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

func zipArchive(t *testing.T, files []archiveFile) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, file := range files {
		w, err := zw.Create(file.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type archiveServer struct {
	*httptest.Server
	hits int32
}

func serveArchives(t *testing.T, archives map[string][]byte) *archiveServer {
	t.Helper()

	srv := &archiveServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&srv.hits, 1)
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testFetcher(root string) *Fetcher {
	f := NewFetcher(root)
	f.HideProgress = true
	return f
}

func TestResolve(t *testing.T) {
	vars := map[string]string{"VERSION": "2.0.0", "linux": "true", "windows": ""}

	spec, ok := Spec{URL: "https://example.com/ndarray-{VERSION}-{MISSING}.tar.gz", Condition: "linux"}.Resolve(vars)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/ndarray-2.0.0-.tar.gz", spec.URL)

	_, ok = Spec{Condition: "windows"}.Resolve(vars)
	assert.False(t, ok)

	_, ok = Spec{Condition: "linux, darwin"}.Resolve(vars)
	assert.False(t, ok)

	_, ok = Spec{Rejections: "linux"}.Resolve(vars)
	assert.False(t, ok)

	_, ok = Spec{Rejections: "windows,darwin"}.Resolve(vars)
	assert.True(t, ok)
}

func TestFetchTarGz(t *testing.T) {
	archive := tarGz(t, []archiveFile{
		{name: "ndarray-2.0.0/lib/libndarray.so", content: "elf"},
		{name: "ndarray-2.0.0/bin/ndarray-config", content: "#!/bin/sh", mode: 0o644},
		{name: "ndarray-2.0.0/include/npy_api.h", content: "// header"},
	})
	srv := serveArchives(t, map[string][]byte{"/ndarray.tar.gz": archive})

	cfg, err := ParseConfig([]byte(`
deps:
  ndarray:
    url: ` + srv.URL + `/ndarray.tar.gz
    dest: third_party/ndarray
    sha256: ` + digest(archive) + `
    strip: 1
    markExec: [bin/ndarray-config]
`))
	require.NoError(t, err)

	root := t.TempDir()
	stamps := Stamps{}
	changes, err := testFetcher(root).Fetch(context.Background(), cfg, stamps)
	require.NoError(t, err)
	assert.Empty(t, changes)

	dest := filepath.Join(root, "third_party", "ndarray")
	data, err := os.ReadFile(filepath.Join(dest, "lib", "libndarray.so"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(data))
	assert.FileExists(t, filepath.Join(dest, "include", "npy_api.h"))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "bin", "ndarray-config"))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0o100)
	}

	assert.Equal(t, cfg.Deps["ndarray"].Token(), stamps["ndarray"])

	// a matching stamp skips the download
	_, err = testFetcher(root).Fetch(context.Background(), cfg, stamps)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.hits))
}

func TestFetchZip(t *testing.T) {
	archive := zipArchive(t, []archiveFile{
		{name: "ndarray.dll", content: "pe"},
		{name: "include/npy_api.h", content: "// header"},
	})
	srv := serveArchives(t, map[string][]byte{"/ndarray.zip": archive})

	cfg, err := ParseConfig([]byte(`
deps:
  ndarray:
    url: ` + srv.URL + `/ndarray.zip
    dest: lib
    sha256: ` + digest(archive) + `
`))
	require.NoError(t, err)

	root := t.TempDir()
	_, err = testFetcher(root).Fetch(context.Background(), cfg, Stamps{})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "lib", "ndarray.dll"))
	assert.FileExists(t, filepath.Join(root, "lib", "include", "npy_api.h"))
}

func TestFetchChecksumMismatch(t *testing.T) {
	archive := tarGz(t, []archiveFile{{name: "a.txt", content: "a"}})
	srv := serveArchives(t, map[string][]byte{"/a.tar.gz": archive})

	cfg, err := ParseConfig([]byte(`
deps:
  a:
    url: ` + srv.URL + `/a.tar.gz
    dest: a
    sha256: deadbeef
`))
	require.NoError(t, err)

	root := t.TempDir()
	stamps := Stamps{}
	_, err = testFetcher(root).Fetch(context.Background(), cfg, stamps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Checksum check failed")
	assert.NoDirExists(t, filepath.Join(root, "a"))
	assert.Empty(t, stamps)

	f := testFetcher(root)
	f.Update = true
	changes, err := f.Fetch(context.Background(), cfg, stamps)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": digest(archive)}, changes)
	assert.FileExists(t, filepath.Join(root, "a", "a.txt"))

	updated, err := cfg.UpdateChecksums(changes)
	require.NoError(t, err)
	assert.Contains(t, updated, "sha256: "+digest(archive))
	assert.NotContains(t, updated, "sha256: deadbeef")
}

func TestFetchRequiresChecksum(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
deps:
  a:
    url: http://127.0.0.1:1/a.tar.gz
    dest: a
`))
	require.NoError(t, err)

	_, err = testFetcher(t.TempDir()).Fetch(context.Background(), cfg, Stamps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't have a checksum")
}

func TestFetchSkipsOtherPlatforms(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
deps:
  a:
    if: not-a-platform
    url: http://127.0.0.1:1/a.tar.gz
    dest: a
    sha256: abc
`))
	require.NoError(t, err)

	changes, err := testFetcher(t.TempDir()).Fetch(context.Background(), cfg, Stamps{})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestUpdateChecksumsInsertsMissing(t *testing.T) {
	cfg, err := ParseConfig([]byte("deps:\n  a:\n    url: http://example.com/a.zip\n    dest: a\n"))
	require.NoError(t, err)

	updated, err := cfg.UpdateChecksums(map[string]string{"a": "abcd"})
	require.NoError(t, err)
	assert.Equal(t, "deps:\n  a:\n    sha256: abcd\n    url: http://example.com/a.zip\n    dest: a\n", updated)

	_, err = cfg.UpdateChecksums(map[string]string{"b": "abcd"})
	assert.Error(t, err)
}

func TestStamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DEPS.stamps")

	stamps, err := LoadStamps(path)
	require.NoError(t, err)
	assert.Empty(t, stamps)

	stamps["a"] = "http://example.com/a.zip#abcd"
	require.NoError(t, stamps.Save(path))

	loaded, err := LoadStamps(path)
	require.NoError(t, err)
	assert.Equal(t, stamps, loaded)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = LoadStamps(path)
	assert.Error(t, err)
}

func TestExtractorDestRejectsTraversal(t *testing.T) {
	dest, err := extractorDest("/dest", "pkg/lib/a.so", Spec{Strip: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/dest", "lib", "a.so"), dest)

	dest, err = extractorDest("/dest", "pkg", Spec{Strip: 1})
	require.NoError(t, err)
	assert.Empty(t, dest)

	_, err = extractorDest("/dest", "../../etc/passwd", Spec{})
	assert.Error(t, err)
}

func TestCheckLinkTarget(t *testing.T) {
	dest := filepath.Join("/dest", "lib", "libndarray.so")

	assert.NoError(t, checkLinkTarget("/dest", dest, "libndarray.so.2"))
	assert.NoError(t, checkLinkTarget("/dest", dest, "../include"))
	assert.Error(t, checkLinkTarget("/dest", dest, "/etc"))
	assert.Error(t, checkLinkTarget("/dest", dest, "../../outside"))
}

func TestFetchRejectsEscapingSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on Windows")
	}

	root := t.TempDir()
	outside := t.TempDir()
	archive := tarGz(t, []archiveFile{
		{name: "ndarray/lib/libndarray.so", content: "elf"},
		{name: "ndarray/escape", link: outside},
		{name: "ndarray/escape/evil.txt", content: "evil"},
	})
	srv := serveArchives(t, map[string][]byte{"/ndarray.tar.gz": archive})

	cfg, err := ParseConfig([]byte(`
deps:
  ndarray:
    url: ` + srv.URL + `/ndarray.tar.gz
    dest: third_party/ndarray
    sha256: ` + digest(archive) + `
    strip: 1
`))
	require.NoError(t, err)

	stamps := Stamps{}
	_, err = testFetcher(root).Fetch(context.Background(), cfg, stamps)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
	assert.Empty(t, stamps)
}

func TestGetExtractor(t *testing.T) {
	for _, url := range []string{"a.zip", "a.tar.gz", "a.tgz", "a.tar.bz2", "a.tar.xz"} {
		_, err := getExtractor(url)
		assert.NoError(t, err, url)
	}

	_, err := getExtractor("a.rar")
	assert.True(t, strings.Contains(err.Error(), "not supported"))
}
