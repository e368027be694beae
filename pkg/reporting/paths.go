package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultReportPath returns results/tpsl_report_<YYYYMMDD_HHMMSS>.xlsx
func DefaultReportPath(now time.Time) string {
	return filepath.Join("results", fmt.Sprintf("tpsl_report_%s.xlsx", now.Format("20060102_150405")))
}

// EnsureDirectoryExists creates the parent directory of path if needed
func EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
