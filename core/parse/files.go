package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MigrationTimestamp extracts the leading numeric timestamp embedded in a
// migration filename. Returns nil when the name has no leading digit run.
func MigrationTimestamp(filename string) *int64 {
	base := filepath.Base(filename)
	end := 0
	for end < len(base) && base[end] >= '0' && base[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	ts, err := strconv.ParseInt(base[:end], 10, 64)
	if err != nil {
		return nil
	}
	return &ts
}

// IsSnapshotFile reports whether a filename marks a full baseline snapshot
// rather than an incremental migration.
func IsSnapshotFile(filename string) bool {
	base := filepath.Base(filename)
	return strings.HasSuffix(base, "_collections_snapshot.js") ||
		strings.HasSuffix(base, "_snapshot.js")
}

// ListMigrationsAfter returns the incremental migration files in dir whose
// embedded timestamp is strictly greater than cutoff, sorted ascending by
// timestamp. The ordering is load-bearing: replaying out of order can
// silently reconstruct a wrong snapshot.
func ListMigrationsAfter(dir string, cutoff int64) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations in %s: %w", dir, err)
	}

	type candidate struct {
		path string
		ts   int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		if IsSnapshotFile(entry.Name()) {
			continue
		}
		ts := MigrationTimestamp(entry.Name())
		if ts == nil || *ts <= cutoff {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, entry.Name()), ts: *ts})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ts != candidates[j].ts {
			return candidates[i].ts < candidates[j].ts
		}
		return candidates[i].path < candidates[j].path
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.path
	}
	return out, nil
}

// LatestSnapshotFile returns the most recent baseline snapshot script in dir
// (by filename-embedded timestamp) and its timestamp. An empty path means no
// baseline exists.
func LatestSnapshotFile(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("failed to list migrations in %s: %w", dir, err)
	}

	best := ""
	var bestTS int64 = -1
	for _, entry := range entries {
		if entry.IsDir() || !IsSnapshotFile(entry.Name()) {
			continue
		}
		ts := MigrationTimestamp(entry.Name())
		if ts == nil {
			continue
		}
		if *ts > bestTS {
			bestTS = *ts
			best = filepath.Join(dir, entry.Name())
		}
	}
	if best == "" {
		return "", 0, nil
	}
	return best, bestTS, nil
}
