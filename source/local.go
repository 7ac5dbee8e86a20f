package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"scanaudit/auditlog"
	"scanaudit/config"
	"scanaudit/hasher"
	"scanaudit/logger"

	"github.com/djherbis/times"
)

func loadLocal(ctx context.Context, cfg *config.Config, input string) ([]part, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	paths := []string{input}
	if info.IsDir() {
		paths, err = findLogs(ctx, input, NewFilter(cfg.IncludePatterns, cfg.ExcludePatterns))
		if err != nil {
			return nil, err
		}
	}

	parts := make([]part, 0, len(paths))
	for _, path := range paths {
		records, err := auditlog.ReadFile(path)
		if err != nil {
			if len(paths) == 1 {
				return nil, err
			}
			logger.Warnf("Skipping audit log %s: %v", path, err)
			continue
		}
		parts = append(parts, part{info: describeFile(path, cfg.HashAlgorithms), records: records})
	}
	return parts, nil
}

// findLogs walks root and returns matching regular files in lexical order.
func findLogs(ctx context.Context, root string, filter *Filter) ([]string, error) {
	var found []string
	err := walk(ctx, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debugf("Cannot read %s: %v", path, err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if filter.Match(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// walk visits root depth-first using an explicit stack.
func walk(ctx context.Context, root string, fn fs.WalkDirFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return fn(root, nil, err)
	}
	type item struct {
		path  string
		entry fs.DirEntry
	}
	stack := []item{{path: root, entry: fs.FileInfoToDirEntry(info)}}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(current.path, current.entry, nil); err != nil {
			if err == fs.SkipDir {
				continue
			}
			return err
		}
		if !current.entry.IsDir() {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if ferr := fn(current.path, current.entry, err); ferr != nil && ferr != fs.SkipDir {
				return ferr
			}
			continue
		}
		for _, child := range entries {
			stack = append(stack, item{path: filepath.Join(current.path, child.Name()), entry: child})
		}
	}
	return nil
}

func describeFile(path string, algorithms []string) Info {
	info := Info{Kind: KindFile, Location: path}
	if abs, err := filepath.Abs(path); err == nil {
		info.Location = abs
	}
	if st, err := os.Stat(path); err == nil {
		info.Bytes = st.Size()
		info.ModTime = st.ModTime().UTC().Format(time.RFC3339)
	}
	if ts, err := times.Stat(path); err == nil && ts.HasBirthTime() {
		info.CreationTime = ts.BirthTime().UTC().Format(time.RFC3339)
	}
	if len(algorithms) > 0 {
		info.Hashes = hasher.ComputeHashes(path, algorithms)
	}
	return info
}
