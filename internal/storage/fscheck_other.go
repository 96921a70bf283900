//go:build !darwin && !linux

package storage

import "errors"

var errNoFilesystemDetection = errors.New("filesystem type detection not available on this OS")

func detectFilesystemType(string) (string, error) {
	return "", errNoFilesystemDetection
}
