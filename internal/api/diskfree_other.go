//go:build !(linux || darwin || freebsd)

package api

import "errors"

func diskFree(string) (uint64, error) {
	return 0, errors.New("disk usage not supported on this platform")
}
