package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCapacityExceeded marks a create call rejected because the account is at
// its concurrent export/import limit. Clients that can classify the rejection
// structurally wrap this sentinel.
var ErrCapacityExceeded = errors.New("job capacity exceeded")

// Error is a non-2xx response from the control API.
type Error struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("server error (code %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the resource does not exist.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == 404
}

// The service only reports the concurrency limit in prose. If it rewords these
// messages, rejections will surface as ordinary job failures instead of being
// retried.
var capacityPhrases = map[Kind]string{
	KindExport: "You cannot export a VM because you may not have more than",
	KindImport: "You cannot import a VM because you may not have more than",
}

// AtCapacity reports whether err is the service refusing a new job of the
// given kind because no slot is free.
func AtCapacity(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCapacityExceeded) {
		return true
	}
	phrase, ok := capacityPhrases[kind]
	return ok && strings.Contains(err.Error(), phrase)
}
