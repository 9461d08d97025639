package optimizer

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ReportFileName is the document the optimizer leaves in the run dir.
const ReportFileName = "optimize_report.json"

func writeReport(runDir string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, ReportFileName), data, 0644)
}

// ReadReport loads a previously written optimize_report.json. The
// archiver folds its totals into the run summary.
func ReadReport(runDir string) (Report, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ReportFileName))
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, err
	}
	return report, nil
}
