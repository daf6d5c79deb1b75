package transfer

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/franksops/vmshift/provider"
	"github.com/jlaffaye/ftp"
)

// ensure interface is implemented
var _ Transferer = (*FTP)(nil)

// DefaultFTPTimeout bounds dialing and each control-connection exchange.
const DefaultFTPTimeout = 60 * time.Second

// conn is the slice of an FTP control connection a transfer needs.
type conn interface {
	Login(user, password string) error
	ChangeDir(dir string) error
	FileSize(name string) (int64, error)
	Retr(name string) (io.ReadCloser, error)
	Stor(name string, r io.Reader) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (conn, error)

// serverConn adapts *ftp.ServerConn to conn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(name string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(name)
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// FTP transfers files between a provider and an FTP server.
type FTP struct {
	local   provider.Provider
	buffers *BufferPool
	timeout time.Duration
	dial    dialFunc
}

// FTPOption configures an FTP transferer.
type FTPOption func(*FTP)

// WithBufferPool shares a buffer pool between transferers.
func WithBufferPool(bp *BufferPool) FTPOption {
	return func(f *FTP) { f.buffers = bp }
}

// WithTimeout overrides DefaultFTPTimeout.
func WithTimeout(d time.Duration) FTPOption {
	return func(f *FTP) { f.timeout = d }
}

// NewFTP creates a transferer whose local paths are resolved by local.
func NewFTP(local provider.Provider, opts ...FTPOption) *FTP {
	f := &FTP{
		local:   local,
		buffers: NewBufferPool(0),
		timeout: DefaultFTPTimeout,
		dial:    dialFTP,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FTP) open(ctx context.Context, remote Locator) (conn, error) {
	c, err := f.dial(ctx, remote.Addr(), f.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransfer, remote.Addr(), err)
	}
	if err := c.Login(remote.User, remote.Password); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("%w: login to %s: %w", ErrTransfer, remote.Host, err)
	}
	if remote.Dir != "" {
		if err := c.ChangeDir(remote.Dir); err != nil {
			_ = c.Quit()
			return nil, fmt.Errorf("%w: cwd %s: %w", ErrTransfer, remote.Dir, err)
		}
	}
	return c, nil
}

// Download retrieves remote.File from remote.Dir into localPath.
func (f *FTP) Download(ctx context.Context, remote Locator, localPath string, onBytes ProgressFunc) (int64, error) {
	c, err := f.open(ctx, remote)
	if err != nil {
		return 0, err
	}
	defer func() { _ = c.Quit() }()

	total, err := c.FileSize(remote.File)
	if err != nil {
		return 0, fmt.Errorf("%w: size of %s: %w", ErrTransfer, remote, err)
	}
	if onBytes != nil {
		onBytes(0, total)
	}

	body, err := c.Retr(remote.File)
	if err != nil {
		return 0, fmt.Errorf("%w: retrieve %s: %w", ErrTransfer, remote, err)
	}
	defer func() { _ = body.Close() }()

	dst, err := f.local.OpenWrite(ctx, localPath)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrTransfer, localPath, err)
	}

	cw := NewCountingWriter(dst, total, onBytes)
	if _, err := f.buffers.Copy(cw, &ctxReader{ctx: ctx, r: body}); err != nil {
		_ = dst.Close()
		return cw.Count(), fmt.Errorf("%w: download %s: %w", ErrTransfer, remote, err)
	}
	if err := dst.Close(); err != nil {
		return cw.Count(), fmt.Errorf("%w: close %s: %w", ErrTransfer, localPath, err)
	}
	return cw.Count(), nil
}

// Upload stores localPath into remote.Dir under its base name.
func (f *FTP) Upload(ctx context.Context, localPath string, remote Locator, onBytes ProgressFunc) error {
	info, err := f.local.Stat(ctx, localPath)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrTransfer, localPath, err)
	}
	src, err := f.local.OpenRead(ctx, localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrTransfer, localPath, err)
	}
	defer func() { _ = src.Close() }()

	c, err := f.open(ctx, remote)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if onBytes != nil {
		onBytes(0, info.Size())
	}
	name := path.Base(localPath)
	cr := NewCountingReader(&ctxReader{ctx: ctx, r: src}, info.Size(), onBytes)
	if err := c.Stor(name, cr); err != nil {
		return fmt.Errorf("%w: store %s: %w", ErrTransfer, name, err)
	}
	return nil
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
