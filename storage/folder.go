package storage

import (
	"fmt"
	"os"
	"strings"
)

// CheckFolder reports whether the folder holds a badger database or is empty.
// A missing folder counts as empty.
func CheckFolder(folderPath string) (isBadgerFolder, isEmpty bool, err error) {
	info, err := os.Stat(folderPath)
	if os.IsNotExist(err) {
		return false, true, nil
	}
	if err != nil {
		return false, false, err
	}
	if !info.IsDir() {
		return false, false, fmt.Errorf("%s is not a directory", folderPath)
	}

	files, err := os.ReadDir(folderPath)
	if err != nil {
		return false, false, err
	}
	if len(files) == 0 {
		return false, true, nil
	}

	hasManifest := false
	hasKeyRegistry := false
	hasVlog := false
	for _, file := range files {
		name := file.Name()
		switch {
		case name == "MANIFEST":
			hasManifest = true
		case name == "KEYREGISTRY":
			hasKeyRegistry = true
		case strings.HasSuffix(name, ".vlog"):
			hasVlog = true
		}
	}
	return hasManifest && hasKeyRegistry && hasVlog, false, nil
}
