package processor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// goos is swapped by tests to exercise platform fallbacks.
var goos = runtime.GOOS

// ResolveTesseract finds the tesseract executable: an explicitly configured
// path first, then PATH, then the usual install locations for the platform.
func ResolveTesseract(configured string) (string, error) {
	return resolveExecutable(EngineTesseract, configured, []string{"tesseract"}, tesseractFallbacks())
}

// ResolvePython finds the interpreter used to drive EasyOCR.
func ResolvePython(configured string) (string, error) {
	return resolveExecutable(EngineEasyOCR, configured, []string{"python3", "python", "py"}, pythonFallbacks())
}

func tesseractFallbacks() []string {
	if goos == "windows" {
		return []string{
			`C:\Program Files\Tesseract-OCR\tesseract.exe`,
			`C:\Program Files (x86)\Tesseract-OCR\tesseract.exe`,
		}
	}
	return []string{
		"/usr/bin/tesseract",
		"/usr/local/bin/tesseract",
		"/opt/homebrew/bin/tesseract",
	}
}

func pythonFallbacks() []string {
	if goos == "windows" {
		return nil
	}
	return []string{
		"/usr/bin/python3",
		"/usr/local/bin/python3",
		"/opt/homebrew/bin/python3",
	}
}

func resolveExecutable(engine Engine, configured string, names []string, fallbacks []string) (string, error) {
	if configured != "" {
		// An explicit setting that does not work is a misconfiguration, not
		// a cue to go looking elsewhere.
		if isExecutable(configured) {
			return filepath.Abs(configured)
		}
		return "", errors.NewEngineUnavailableError(string(engine),
			fmt.Errorf("configured executable %q is missing or not executable", configured))
	}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return filepath.Abs(path)
		}
	}

	for _, path := range fallbacks {
		if isExecutable(path) {
			return path, nil
		}
	}

	return "", errors.NewEngineUnavailableError(string(engine),
		fmt.Errorf("none of %v found in PATH or default locations", names))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if goos == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
