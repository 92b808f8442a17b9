package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists analytics documents as one JSON file each under the
// configured root: operations/<id>.json, profiles/<module>.json,
// reports/<id>.json. Directories are created lazily on first write.
type Store struct {
	root string
}

// NewStore creates a document store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// SaveOperation writes the operation record document.
func (s *Store) SaveOperation(record *OperationRecord) error {
	if record.OperationID == "" {
		return fmt.Errorf("operation record has no id")
	}
	return s.writeDocument("operations", record.OperationID, record)
}

// LoadOperation reads one operation record back by id.
func (s *Store) LoadOperation(operationID string) (*OperationRecord, error) {
	var record OperationRecord
	if err := s.readDocument("operations", operationID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SaveProfile writes the module profile document, overwriting any prior
// snapshot for the module.
func (s *Store) SaveProfile(profile *ModuleRecoveryProfile) error {
	if profile.ModuleID == "" {
		return fmt.Errorf("module profile has no module id")
	}
	return s.writeDocument("profiles", profile.ModuleID, profile)
}

// LoadProfile reads one module profile back.
func (s *Store) LoadProfile(moduleID string) (*ModuleRecoveryProfile, error) {
	var profile ModuleRecoveryProfile
	if err := s.readDocument("profiles", moduleID, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveReport writes the system report document.
func (s *Store) SaveReport(report *SystemReport) error {
	if report.ReportID == "" {
		return fmt.Errorf("system report has no id")
	}
	return s.writeDocument("reports", report.ReportID, report)
}

// LoadReport reads one system report back by id.
func (s *Store) LoadReport(reportID string) (*SystemReport, error) {
	var report SystemReport
	if err := s.readDocument("reports", reportID, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) writeDocument(kind, id string, doc interface{}) error {
	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s document %s: %w", kind, id, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s document %s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) readDocument(kind, id string, doc interface{}) error {
	path := filepath.Join(s.root, kind, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s document %s: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decoding %s document %s: %w", kind, id, err)
	}
	return nil
}
