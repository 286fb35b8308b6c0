// Package subvol is the Subvolume Manager: create, snapshot, delete, and
// enumerate btrfs subvolumes under an images directory.
//
// Grounded on gprovision's pkg/recovery/disk package's pattern of shelling
// out to system tools via captured-output commands and returning typed
// results (disk.go, fs.go), generalized here from raw block devices to
// btrfs subvolumes because darch's images live entirely inside one btrfs
// filesystem rather than spanning raw disks.
package subvol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/robinei/darch/internal/dierr"
	"github.com/robinei/darch/internal/manifest"
	"github.com/robinei/darch/internal/runner"
)

var genDirRe = regexp.MustCompile(`^gen-(\d+)$`)

// Generation describes one btrfs subvolume under <images>.
type Generation struct {
	Number    int
	Path      string
	Complete  bool
	Manifest  *manifest.Manifest
	CreatedAt time.Time
}

// Manager operates on the <images> directory holding all generations.
type Manager struct {
	Images string
}

func New(images string) *Manager { return &Manager{Images: images} }

func (m *Manager) genPath(n int) string {
	return filepath.Join(m.Images, fmt.Sprintf("gen-%d", n))
}

// List enumerates entries named gen-N under <images>, sorted ascending by
// number, reading config.json for each if present. An entry with no
// config.json is incomplete per the completion-marker protocol.
func (m *Manager) List() ([]Generation, error) {
	entries, err := os.ReadDir(m.Images)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("subvol: reading %s: %w", m.Images, err)
	}
	var gens []Generation
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		match := genDirRe.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil || n <= 0 {
			continue
		}
		g := Generation{Number: n, Path: filepath.Join(m.Images, e.Name())}
		cfgPath := filepath.Join(g.Path, "config.json")
		if info, err := os.Stat(cfgPath); err == nil {
			raw, err := os.ReadFile(cfgPath)
			if err != nil {
				return nil, fmt.Errorf("subvol: reading %s: %w", cfgPath, err)
			}
			man, err := manifest.Parse(raw)
			if err != nil {
				// unparsable config.json: treat as incomplete rather than fatal,
				// GC will reap it.
				gens = append(gens, g)
				continue
			}
			g.Complete = true
			g.Manifest = man
			g.CreatedAt = info.ModTime()
		}
		gens = append(gens, g)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].Number < gens[j].Number })
	return gens, nil
}

// NextNumber returns 1 + the max existing generation number, or 1 if none
// exist.
func (m *Manager) NextNumber() (int, error) {
	gens, err := m.List()
	if err != nil {
		return 0, err
	}
	max := 0
	for _, g := range gens {
		if g.Number > max {
			max = g.Number
		}
	}
	return max + 1, nil
}

// Create creates a new empty subvolume gen-N. If one already exists
// (orphaned from a prior crashed build) it is deleted first - permitted
// because an existing-but-unreferenced subvolume at this number can only
// be incomplete.
func (m *Manager) Create(ctx context.Context, n int) error {
	path := m.genPath(n)
	if _, err := os.Stat(path); err == nil {
		if err := m.Delete(ctx, n); err != nil {
			return err
		}
	}
	_, err := runner.Run(ctx, []string{"btrfs", "subvolume", "create", path}, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("subvol: create gen-%d: %w", n, err)
	}
	return nil
}

// Snapshot creates gen-dst as a writable snapshot of gen-src.
func (m *Manager) Snapshot(ctx context.Context, src, dst int) error {
	dstPath := m.genPath(dst)
	if _, err := os.Stat(dstPath); err == nil {
		if err := m.Delete(ctx, dst); err != nil {
			return err
		}
	}
	srcPath := m.genPath(src)
	_, err := runner.Run(ctx, []string{"btrfs", "subvolume", "snapshot", srcPath, dstPath}, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("subvol: snapshot gen-%d -> gen-%d: %w", src, dst, err)
	}
	return nil
}

// Delete removes gen-N. Idempotent: a missing subvolume is success.
func (m *Manager) Delete(ctx context.Context, n int) error {
	path := m.genPath(n)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	_, err := runner.Run(ctx, []string{"btrfs", "subvolume", "delete", path}, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("subvol: delete gen-%d: %w", n, err)
	}
	return nil
}

// Path returns the absolute path of generation n, without checking
// existence.
func (m *Manager) Path(n int) string { return m.genPath(n) }

// Complete returns the subset of gens that are complete, in ascending
// order by number (List already guarantees ascending order, so this is a
// pure filter).
func Complete(gens []Generation) []Generation {
	var out []Generation
	for _, g := range gens {
		if g.Complete {
			out = append(out, g)
		}
	}
	return out
}

// Current returns the highest-numbered complete generation, or ok=false
// if there is none.
func Current(gens []Generation) (Generation, bool) {
	c := Complete(gens)
	if len(c) == 0 {
		return Generation{}, false
	}
	return c[len(c)-1], true
}

// EnsureImagesDir makes sure <images> exists, returning a
// MissingPrerequisite if the parent btrfs mount is absent.
func (m *Manager) EnsureImagesDir() error {
	if _, err := os.Stat(m.Images); err != nil {
		return &dierr.MissingPrerequisite{What: fmt.Sprintf("images directory %s", m.Images)}
	}
	return nil
}
