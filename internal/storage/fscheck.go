package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
	"ceph":   {},
	"afs":    {},
}

// CheckLocalFilesystem rejects paths that live on a network filesystem.
// field names the config key in the error message.
func CheckLocalFilesystem(path, field string) error {
	return checkLocalFilesystemWithDetector(path, field, detectFilesystemType)
}

func checkLocalFilesystemWithDetector(path, field string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s is empty", field)
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %s %q: %w", field, path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		// Unknown platforms get the benefit of the doubt.
		return nil
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf(
			"%s %q is on network filesystem %q; SQLite locking and atomic renames need a local filesystem. Point %s at local disk",
			field, path, fsType, field,
		)
	}
	return nil
}

// nearestExistingPath walks up from path until it finds something that exists.
func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for candidate := absPath; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
