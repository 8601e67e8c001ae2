//go:build windows

package store

import (
	"fmt"
	"os"
)

// acquireLock creates path + ".lock" exclusively. A stale lock file left by a
// crashed process has to be removed by hand.
func acquireLock(path string) (func() error, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("%w: create lock file: %w", ErrIO, err)
	}

	return func() error {
		f.Close()
		return os.Remove(lockPath)
	}, nil
}
