package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	apperr "github.com/definium/defsearch/internal/errors"
)

// maxDecodeWorkers bounds concurrent set decoding.
const maxDecodeWorkers = 4

// DefaultMaxSetBytes caps a single document set when the caller does
// not supply a limit. Matches the default ingest.max_set_size_mb.
const DefaultMaxSetBytes = 64 << 20

// ReadSets decodes document sets from the given paths. Plain .json
// files decode to one set each; .zip archives contribute one set per
// .json entry. Paths decode concurrently but the returned sets keep
// the caller's path order, so multi-file ingestion stays deterministic.
//
// maxSetBytes caps the decoded size of each individual set; zero or
// negative falls back to DefaultMaxSetBytes. A path that cannot be
// read, decoded, or fits the cap fails the whole read: partial input
// never reaches the coordinator.
func ReadSets(ctx context.Context, paths []string, maxSetBytes int64) ([]*Set, error) {
	if maxSetBytes <= 0 {
		maxSetBytes = DefaultMaxSetBytes
	}
	perPath := make([][]*Set, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDecodeWorkers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sets, err := readPath(path, maxSetBytes)
			if err != nil {
				return err
			}
			perPath[i] = sets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*Set
	for _, sets := range perPath {
		all = append(all, sets...)
	}
	return all, nil
}

func readPath(path string, maxSetBytes int64) ([]*Set, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return readArchive(path, maxSetBytes)
	case ".json":
		set, err := readJSONFile(path, maxSetBytes)
		if err != nil {
			return nil, err
		}
		return []*Set{set}, nil
	default:
		return nil, apperr.MalformedInput(
			fmt.Sprintf("unsupported input %s (want .json or .zip)", path), nil).
			WithDetail("path", path)
	}
}

func readJSONFile(path string, maxSetBytes int64) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.MalformedInput(fmt.Sprintf("open %s", path), err).
			WithDetail("path", path)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > maxSetBytes {
		return nil, oversizedSetError(path, info.Size(), maxSetBytes)
	}

	set, err := decodeSet(f, maxSetBytes)
	if err != nil {
		return nil, apperr.MalformedInput(fmt.Sprintf("decode %s", path), err).
			WithDetail("path", path)
	}
	set.Source = path
	return set, nil
}

// readArchive extracts every .json entry of a zip archive as its own
// set. Entries are processed in name order for deterministic reports.
func readArchive(path string, maxSetBytes int64) ([]*Set, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperr.MalformedInput(fmt.Sprintf("open archive %s", path), err).
			WithDetail("path", path)
	}
	defer r.Close()

	entries := make([]*zip.File, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".json") {
			continue
		}
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if len(entries) == 0 {
		return nil, apperr.MalformedInput(
			fmt.Sprintf("archive %s contains no .json entries", path), nil).
			WithDetail("path", path)
	}

	sets := make([]*Set, 0, len(entries))
	for _, entry := range entries {
		source := path + "!" + entry.Name
		if size := int64(entry.UncompressedSize64); size > maxSetBytes {
			return nil, oversizedSetError(source, size, maxSetBytes)
		}
		set, err := readArchiveEntry(entry, maxSetBytes)
		if err != nil {
			return nil, apperr.MalformedInput(
				fmt.Sprintf("decode %s in archive %s", entry.Name, path), err).
				WithDetail("path", path).
				WithDetail("entry", entry.Name)
		}
		set.Source = source
		sets = append(sets, set)
	}
	return sets, nil
}

func readArchiveEntry(entry *zip.File, maxSetBytes int64) (*Set, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return decodeSet(rc, maxSetBytes)
}

// decodeSet reads at most maxSetBytes+1 so an input lying about its
// size (a zip header, a growing file) still trips the cap.
func decodeSet(r io.Reader, maxSetBytes int64) (*Set, error) {
	var set Set
	limited := &io.LimitedReader{R: r, N: maxSetBytes + 1}
	dec := json.NewDecoder(limited)
	if err := dec.Decode(&set); err != nil {
		if limited.N <= 0 {
			return nil, fmt.Errorf("set exceeds the %d byte limit", maxSetBytes)
		}
		return nil, err
	}
	return &set, nil
}

func oversizedSetError(source string, size, maxSetBytes int64) error {
	return apperr.MalformedInput(
		fmt.Sprintf("set %s is %d bytes, over the %d byte limit", source, size, maxSetBytes), nil).
		WithDetail("source", source).
		WithDetail("size", fmt.Sprintf("%d", size))
}
