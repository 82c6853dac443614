package common

import (
	"os"
)

// FileExists checks if a file exists using os.Stat, returns false if any error occurs
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
