package reporter

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	logPrefix = "OUTPUT-"
	logSuffix = ".txt"

	// staleLogPattern matches failure logs left over from an earlier run
	staleLogPattern = "**/" + logPrefix + "*" + logSuffix
)

var unsafeFileChar = regexp.MustCompile(`[^a-zA-Z .\-_0-9]`)

// LogFileName returns the failure log file name for a suite name. Every
// character outside [A-Za-z0-9 .-_] becomes an underscore.
func LogFileName(suiteName string) string {
	return unsafeFileChar.ReplaceAllString(logPrefix+suiteName+logSuffix, "_")
}

// PurgeStaleLogs deletes failure logs under dir and returns how many were removed.
// A missing dir is not an error.
func PurgeStaleLogs(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), staleLogPattern)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, match := range matches {
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(match))); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
