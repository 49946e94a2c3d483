package normalize

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const ruleSeparator = "->"

// DefaultDictionaryTemplate is written when the dictionary file is missing.
const DefaultDictionaryTemplate = `# Format: source -> replacement
# Lines starting with # are comments.
# Example:
# シーピーユー -> CPU
# ジーピーユー -> GPU
# エーピーアイ -> API
`

// ParseDictionary reads "source -> replacement" lines. Comments, blank lines,
// lines without a separator and lines with an empty source are skipped.
func ParseDictionary(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		from, to, ok := strings.Cut(line, ruleSeparator)
		if !ok {
			continue
		}
		from = strings.TrimSpace(from)
		if from == "" {
			continue
		}
		rules = append(rules, Rule{From: from, To: strings.TrimSpace(to)})
	}
	if err := scanner.Err(); err != nil {
		return rules, fmt.Errorf("scan dictionary: %w", err)
	}
	return rules, nil
}

// EnsureDictionaryFile creates path with the commented template when absent.
func EnsureDictionaryFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dictionary dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dictionary-*.txt")
	if err != nil {
		return fmt.Errorf("create dictionary: %w", err)
	}
	if _, err := tmp.WriteString(DefaultDictionaryTemplate); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write dictionary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadDictionary ensures the file exists and parses it.
func LoadDictionary(path string) ([]Rule, error) {
	if err := EnsureDictionaryFile(path); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer file.Close()
	return ParseDictionary(file)
}
