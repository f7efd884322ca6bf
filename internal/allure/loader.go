// Package allure reads Allure result files into normalized records.
package allure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/testkube/quality-dashboard/internal/records"
)

// IsResultFile reports whether name looks like an Allure result file, as
// opposed to containers, attachments or environment files.
func IsResultFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, "-result.json") || strings.HasSuffix(base, "-results.json")
}

// Parse decodes a result file. A file may hold one result object or an
// array of them.
func Parse(data []byte) ([]records.TestRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws []records.Raw
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse result array: %w", err)
		}
	} else {
		var raw records.Raw
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse result: %w", err)
		}
		raws = []records.Raw{raw}
	}

	recs := make([]records.TestRecord, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		recs = append(recs, records.NormalizeAllureResult(raw))
	}
	return recs, nil
}

// LoadFile reads and parses a single result file.
func LoadFile(path string) ([]records.TestRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	recs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// ResultFiles lists result files under dir, sorted by path.
func ResultFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsResultFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir loads every result file under dir. Files that cannot be read or
// parsed are skipped and reported together in the returned error, alongside
// the records that did load.
func LoadDir(dir string) ([]records.TestRecord, error) {
	files, err := ResultFiles(dir)
	if err != nil {
		return nil, err
	}

	var (
		all  []records.TestRecord
		errs *multierror.Error
	)
	for _, f := range files {
		recs, err := LoadFile(f)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		all = append(all, recs...)
	}
	return all, errs.ErrorOrNil()
}
