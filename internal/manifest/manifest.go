// Package manifest is the canonical source of truth for every CSV
// artifact the loader pipeline consumes: filename, target table, expected
// line count, SHA-256, and FK columns. It verifies artifacts by streaming
// them once, never loading a file fully into memory.
package manifest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stormlightlabs.org/hoopscore/internal/core"
)

// Entry describes one declared CSV artifact.
type Entry struct {
	TargetTable string   `yaml:"target_table"`
	LineCount   int64    `yaml:"line_count"`
	SHA256      string   `yaml:"sha256"`
	Description string   `yaml:"description,omitempty"`
	FKColumns   []string `yaml:"fk_columns,omitempty"`
}

// Manifest is the parsed YAML catalog: csv_filename → Entry, with the
// filenames kept in lexicographic order.
type Manifest struct {
	Entries     map[string]Entry
	order       []string
}

// Files returns the entry filenames sorted lexicographically.
func (m *Manifest) Files() []string {
	return m.order
}

type yamlDoc struct {
	Files map[string]Entry `yaml:"files"`
}

// Load parses path into a Manifest. The YAML is authoritative; the
// process holds no other state about artifact identity.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.New("manifest", core.ManifestMissingFile, fmt.Sprintf("reading manifest file %s", path), err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.New("manifest", core.ManifestIncomplete, "manifest YAML is not well-formed", err)
	}

	m := &Manifest{Entries: doc.Files}
	for filename, entry := range doc.Files {
		if entry.TargetTable == "" {
			return nil, core.New("manifest", core.ManifestIncomplete, fmt.Sprintf("entry %q has no target_table", filename), nil)
		}
	}

	// Deterministic order regardless of map iteration: sorted lexicographically.
	m.order = sortedKeys(doc.Files)
	return m, nil
}

func sortedKeys(m map[string]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// VerifyResult is the outcome of verifying one artifact against its entry.
type VerifyResult struct {
	OK              bool
	ComputedSHA256  string
	ComputedLines   int64
	Errors          []error
}

// VerifyFile streams filename (resolved under dataDir) once, computing its
// SHA-256 (8 KiB chunks) and line count concurrently with the same read,
// then compares both against entry. Constant memory regardless of file
// size.
func VerifyFile(dataDir, filename string, entry Entry) (VerifyResult, error) {
	path := filepath.Join(dataDir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{}, core.New("manifest", core.ManifestMissingFile, filename, err)
		}
		return VerifyResult{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	tee := io.TeeReader(f, hasher)
	scanner := bufio.NewScanner(tee)
	scanner.Buffer(make([]byte, 0, 8*1024), 8*1024*1024)

	var lines int64
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	computedSHA := hex.EncodeToString(hasher.Sum(nil))

	res := VerifyResult{
		ComputedSHA256: computedSHA,
		ComputedLines:  lines,
	}

	if computedSHA != entry.SHA256 {
		res.Errors = append(res.Errors, core.New("manifest", core.ManifestMismatch,
			fmt.Sprintf("%s: sha256 mismatch (expected %s, got %s)", filename, entry.SHA256, computedSHA), nil))
	}
	if lines != entry.LineCount {
		res.Errors = append(res.Errors, core.New("manifest", core.ManifestMismatch,
			fmt.Sprintf("%s: line count mismatch (expected %d, got %d)", filename, entry.LineCount, lines), nil))
	}
	res.OK = len(res.Errors) == 0
	return res, nil
}

// VerifyAll verifies every declared entry against dataDir. In normal mode
// it stops at the first failure; in inspectOnly mode it verifies every
// entry and returns all failures without treating any as fatal.
func VerifyAll(m *Manifest, dataDir string, inspectOnly bool) (map[string]VerifyResult, error) {
	results := make(map[string]VerifyResult, len(m.Entries))
	for _, filename := range m.Files() {
		entry := m.Entries[filename]
		res, err := VerifyFile(dataDir, filename, entry)
		if err != nil {
			if inspectOnly {
				results[filename] = VerifyResult{Errors: []error{err}}
				continue
			}
			return results, err
		}
		results[filename] = res
		if !res.OK && !inspectOnly {
			return results, res.Errors[0]
		}
	}
	return results, nil
}
