package store

import (
	"fmt"
	"os"
	"time"

	"github.com/engram-hq/engram/engramerr"
)

// fileLock is a per-project advisory lock implemented as a sentinel file
// created with O_EXCL, enforcing a single-writer rule without depending on a
// platform-specific flock syscall.
type fileLock struct {
	path string
}

const (
	lockRetryInterval = 25 * time.Millisecond
	lockTimeout       = 5 * time.Second
)

func acquireLock(path string) (*fileLock, error) {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &fileLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, &engramerr.StoreError{Op: "lock", Err: err}
		}
		if time.Now().After(deadline) {
			return nil, &engramerr.StoreError{Op: "lock", Err: fmt.Errorf("timed out waiting for lock: %s", path)}
		}
		time.Sleep(lockRetryInterval)
	}
}

func (l *fileLock) release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
