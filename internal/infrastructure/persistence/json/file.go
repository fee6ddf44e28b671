package json

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"github.com/webguard-sec/webguard/internal/shared/security"
)

const timeFormat = time.RFC3339Nano

// prepareFile validates dataDir/name and creates it holding an empty list.
func prepareFile(dataDir, name string, perm fs.FileMode) (string, error) {
	if dataDir == "" {
		return "", fmt.Errorf("data directory cannot be empty")
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(dataDir, constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	filePath := filepath.Join(dataDir, name)

	// Validate the file path for security
	if !security.IsValidPath(filePath) {
		return "", fmt.Errorf("invalid file path: %s", filePath)
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := writeList(filePath, []struct{}{}, perm); err != nil {
			return "", fmt.Errorf("failed to initialize %s: %w", name, err)
		}
	}
	return filePath, nil
}

func readList[T any](filePath string) ([]T, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrDeserializationFailed, filepath.Base(filePath), err)
	}
	return items, nil
}

// writeList replaces the file atomically so readers never see a partial list.
func writeList[T any](filePath string, items []T, perm fs.FileMode) error {
	return writeFile(filePath, items, perm)
}

// sequences holds the highest id ever assigned per entity, so ids of
// deleted records are never handed out again. They live next to the list
// they number, e.g. scans.seq.json for scans.json.
type sequences map[string]int64

func sequencePath(filePath string) string {
	return strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".seq.json"
}

func readSequences(filePath string) (sequences, error) {
	path := sequencePath(filePath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sequences{}, nil
		}
		return nil, err
	}

	seq := sequences{}
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrDeserializationFailed, filepath.Base(path), err)
	}
	return seq, nil
}

func writeSequences(filePath string, seq sequences, perm fs.FileMode) error {
	return writeFile(sequencePath(filePath), seq, perm)
}

// next assigns the id after both the recorded mark and floor, the highest
// id currently stored.
func (s sequences) next(name string, floor int64) int64 {
	id := max(s[name], floor) + 1
	s[name] = id
	return id
}

func writeFile(filePath string, v any, perm fs.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filePath)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return t, nil
}
