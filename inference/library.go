package inference

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// LibraryDir is where DefaultLibraryPath looks for the onnxruntime shared
// library.
var LibraryDir = "third_party"

// DefaultLibraryPath returns the onnxruntime shared library bundled for the
// current platform.
func DefaultLibraryPath() (string, error) {
	name := ""
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			name = "onnxruntime.dll"
		}
	case "darwin":
		switch runtime.GOARCH {
		case "arm64":
			name = "onnxruntime_arm64.dylib"
		case "amd64":
			name = "onnxruntime_amd64.dylib"
		}
	case "linux":
		name = "onnxruntime.so"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	}
	if name == "" {
		return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	return filepath.Join(LibraryDir, name), nil
}
