package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/solatis/editcheck/internal/types"
)

const twoDetailFiling = `{
  "header": {"recordID": "1", "timestamp": "201801011200", "taxId": "12-3456789",
             "agencyCode": "9", "respondentID": "0123456789", "totalLineEntries": "2"},
  "details": [
    {"recordID": "2", "agencyCode": "9", "respondentID": "0123456789", "loanNumber": "L1"},
    {"recordID": "1", "agencyCode": "9", "respondentID": "0123456789", "loanNumber": "L2"}
  ]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidate_WritesReport(t *testing.T) {
	dir := t.TempDir()
	dbURL := "sqlite://" + filepath.Join(dir, "editcheck.db")
	filingPath := filepath.Join(dir, "filing.json")
	reportPath := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "metrics.prom")
	if err := os.WriteFile(filingPath, []byte(twoDetailFiling), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "migrate", "--db-url", dbURL, "--log-level", "error"); err != nil {
		t.Fatalf("migrate error = %v", err)
	}

	_, err := execute(t, "validate", filingPath,
		"--db-url", dbURL,
		"--log-level", "error",
		"--type", "syntactical",
		"--output", reportPath,
		"--metrics-out", metricsPath,
	)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		RunID  string `json:"run_id"`
		Year   int    `json:"year"`
		Errors map[string]map[string]struct {
			Scope  string `json:"scope"`
			Errors []struct {
				LineNumber int `json:"lineNumber"`
			} `json:"errors"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, data)
	}
	if got.RunID == "" || got.Year != 2017 {
		t.Errorf("run_id/year = %q/%d", got.RunID, got.Year)
	}
	s011, ok := got.Errors["syntactical"]["S011"]
	if !ok {
		t.Fatalf("S011 missing from report: %s", data)
	}
	if s011.Scope != "lar" || len(s011.Errors) != 1 || s011.Errors[0].LineNumber != 3 {
		t.Errorf("S011 = %+v, want one lar entry at line 3", s011)
	}

	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(metrics, []byte("editcheck_")) {
		t.Errorf("metrics file has no editcheck series:\n%s", metrics)
	}
}

func TestValidate_UnknownEditType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filing.json")
	if err := os.WriteFile(path, []byte(twoDetailFiling), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "validate", path, "--log-level", "error", "--type", "cosmetic"); err == nil {
		t.Fatal("expected error for unknown edit type")
	}
}

func TestWriteReport(t *testing.T) {
	r := report{RunID: "run", Year: 2017, Errors: types.NewErrorCollection()}

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeReport(&buf, "-", r); err != nil {
			t.Fatalf("writeReport() error = %v", err)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"run_id": "run"`)) {
			t.Errorf("stdout report = %s", buf.String())
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		if err := writeReport(nil, path, r); err != nil {
			t.Fatalf("writeReport() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(data, []byte(`"year": 2017`)) {
			t.Errorf("file report = %s", data)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent", "report.json")
		if err := writeReport(nil, path, r); err == nil {
			t.Fatal("expected error for unwritable path")
		}
	})

	t.Run("device full", func(t *testing.T) {
		if _, err := os.Stat("/dev/full"); err != nil {
			t.Skip("/dev/full not available")
		}
		if err := writeReport(nil, "/dev/full", r); err == nil {
			t.Fatal("expected error when the report cannot be written")
		}
	})
}
