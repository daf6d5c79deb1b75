// Package transfer moves VM image files between the local side (disk or an
// S3 staging bucket) and the per-job FTP drop the control API hands out.
package transfer

import (
	"context"
	"errors"
	"net"
)

// ErrTransfer marks a failed bulk transfer. It is fatal for the job and never
// retried automatically.
var ErrTransfer = errors.New("bulk transfer failed")

// DefaultPort is used when a Locator host carries no port.
const DefaultPort = "21"

// Locator addresses one remote file or upload directory.
type Locator struct {
	Host     string
	User     string
	Password string
	Dir      string
	File     string
}

// Addr returns host:port for dialing.
func (l Locator) Addr() string {
	if _, _, err := net.SplitHostPort(l.Host); err == nil {
		return l.Host
	}
	return net.JoinHostPort(l.Host, DefaultPort)
}

// String renders the locator without its password.
func (l Locator) String() string {
	s := "ftp://"
	if l.User != "" {
		s += l.User + "@"
	}
	s += l.Host + l.Dir
	if l.File != "" {
		if len(l.Dir) == 0 || l.Dir[len(l.Dir)-1] != '/' {
			s += "/"
		}
		s += l.File
	}
	return s
}

// ProgressFunc receives the running byte count and the expected total. total
// is 0 when the size is unknown.
type ProgressFunc func(transferred, total int64)

// Transferer performs a single blocking file transfer.
type Transferer interface {
	// Download copies remote into localPath and returns the byte count.
	Download(ctx context.Context, remote Locator, localPath string, onBytes ProgressFunc) (int64, error)
	// Upload stores localPath into the remote directory under its base name.
	Upload(ctx context.Context, localPath string, remote Locator, onBytes ProgressFunc) error
}
