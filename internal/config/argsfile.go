package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ArgsFileEnv overrides the location of the per-user args file.
const ArgsFileEnv = "ARCHIVERRC"

// DefaultArgsFile returns the per-user args file path, or "" when no home
// directory can be determined.
func DefaultArgsFile() string {
	if p := os.Getenv(ArgsFileEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".archiverrc")
}

// LoadArgsFile reads one argument per line. Blank lines and lines starting
// with '#' are skipped. A missing file yields no arguments.
func LoadArgsFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open args file: %w", err)
	}
	defer f.Close()

	var args []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args = append(args, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read args file %s: %w", path, err)
	}
	return args, nil
}
