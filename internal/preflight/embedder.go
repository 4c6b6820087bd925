package preflight

import (
	"fmt"
	"os"
	"strings"
)

const nativeModelPrefix = "native:"

// CheckNativeModel checks that a "native:<path>" model spec points at an
// existing file that is not a directory; it does not open the file. A "static" spec (or empty) always passes,
// since the built-in static model has no external file dependency.
func (c *Checker) CheckNativeModel(modelSpec string) CheckResult {
	result := CheckResult{
		Name:     "embedder_model",
		Required: false, // non-critical: caller decides whether to abort
	}

	if !strings.HasPrefix(modelSpec, nativeModelPrefix) {
		result.Status = StatusPass
		result.Message = "using built-in static model"
		return result
	}

	path := strings.TrimPrefix(modelSpec, nativeModelPrefix)
	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("native model library not found: %v", err)
		result.Details = fmt.Sprintf("path: %s", path)
		return result
	}
	if info.IsDir() {
		result.Status = StatusFail
		result.Message = "native model path is a directory, not a shared library"
		result.Details = fmt.Sprintf("path: %s", path)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("native model library ready (%s)", formatBytes(uint64(info.Size())))
	result.Details = fmt.Sprintf("path: %s", path)
	return result
}
