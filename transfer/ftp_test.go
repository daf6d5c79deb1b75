package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franksops/vmshift/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	files    map[string][]byte
	stored   map[string][]byte
	cwd      string
	user     string
	loginErr error
	quit     bool
}

func (c *fakeConn) Login(user, password string) error {
	c.user = user
	return c.loginErr
}

func (c *fakeConn) ChangeDir(dir string) error {
	c.cwd = dir
	return nil
}

func (c *fakeConn) FileSize(name string) (int64, error) {
	data, ok := c.files[c.cwd+"/"+name]
	if !ok {
		return 0, errors.New("550 no such file")
	}
	return int64(len(data)), nil
}

func (c *fakeConn) Retr(name string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.files[c.cwd+"/"+name])), nil
}

func (c *fakeConn) Stor(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.stored[c.cwd+"/"+name] = data
	return nil
}

func (c *fakeConn) Quit() error {
	c.quit = true
	return nil
}

func newFakeFTP(t *testing.T, fc *fakeConn) (*FTP, string, *string) {
	t.Helper()
	base := t.TempDir()
	f := NewFTP(provider.NewLocalProvider(base), WithBufferPool(NewBufferPool(3)))
	var dialed string
	f.dial = func(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
		dialed = addr
		return fc, nil
	}
	return f, base, &dialed
}

func TestFTP_Download(t *testing.T) {
	fc := &fakeConn{files: map[string][]byte{"/exports/42/vm.7z": []byte("compressed-vm-image")}}
	f, base, dialed := newFakeFTP(t, fc)

	var last, total int64
	n, err := f.Download(context.Background(),
		Locator{Host: "ftp.example.com", User: "u", Password: "p", Dir: "/exports/42", File: "vm.7z"},
		"vm_42/vm.7z",
		func(done, size int64) { last, total = done, size })
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com:21", *dialed)
	assert.Equal(t, "u", fc.user)
	assert.True(t, fc.quit)
	assert.Equal(t, int64(19), n)
	assert.Equal(t, int64(19), last)
	assert.Equal(t, int64(19), total)

	data, err := os.ReadFile(filepath.Join(base, "vm_42", "vm.7z"))
	require.NoError(t, err)
	assert.Equal(t, "compressed-vm-image", string(data))
}

func TestFTP_DownloadMissingFile(t *testing.T) {
	fc := &fakeConn{files: map[string][]byte{}}
	f, _, _ := newFakeFTP(t, fc)

	_, err := f.Download(context.Background(), Locator{Host: "h", Dir: "/x", File: "vm.7z"}, "out", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)
}

func TestFTP_Upload(t *testing.T) {
	fc := &fakeConn{stored: map[string][]byte{}}
	f, base, dialed := newFakeFTP(t, fc)
	require.NoError(t, os.WriteFile(filepath.Join(base, "vm.7z"), []byte("payload"), 0o644))

	var calls int
	err := f.Upload(context.Background(), "vm.7z",
		Locator{Host: "ftp.example.com:2121", Dir: "/upload/"},
		func(done, size int64) { calls++ })
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com:2121", *dialed)
	assert.Equal(t, "payload", string(fc.stored["/upload//vm.7z"]))
	assert.Greater(t, calls, 1)
}

func TestFTP_UploadMissingLocal(t *testing.T) {
	fc := &fakeConn{stored: map[string][]byte{}}
	f, _, _ := newFakeFTP(t, fc)

	err := f.Upload(context.Background(), "nope.7z", Locator{Host: "h"}, nil)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.Empty(t, fc.stored)
}

func TestFTP_LoginFailure(t *testing.T) {
	fc := &fakeConn{loginErr: errors.New("530 login incorrect")}
	f, _, _ := newFakeFTP(t, fc)

	_, err := f.Download(context.Background(), Locator{Host: "h", File: "vm.7z"}, "out", nil)
	require.ErrorIs(t, err, ErrTransfer)
	assert.Contains(t, err.Error(), "530")
	assert.True(t, fc.quit)
}

func TestLocator_String(t *testing.T) {
	loc := Locator{Host: "ftp.example.com", User: "u", Password: "hunter2", Dir: "/exports/1", File: "vm.7z"}
	assert.Equal(t, "ftp://u@ftp.example.com/exports/1/vm.7z", loc.String())
	assert.False(t, strings.Contains(loc.String(), "hunter2"))
}

func TestCountingReader(t *testing.T) {
	var seen []int64
	r := NewCountingReader(strings.NewReader("abcdef"), 6, func(done, total int64) {
		seen = append(seen, done)
	})
	buf := make([]byte, 4)
	_, _ = r.Read(buf)
	_, _ = r.Read(buf)
	assert.Equal(t, []int64{4, 6}, seen)
	assert.Equal(t, int64(6), r.Count())
}
