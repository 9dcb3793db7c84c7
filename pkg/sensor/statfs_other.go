//go:build !unix

package sensor

import "errors"

func diskUsage(path string) (total, free uint64, err error) {
	return 0, 0, errors.New("sensor: disk usage not supported on this platform")
}
