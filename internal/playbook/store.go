package playbook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DetectionFile is the filename of the detection partition document.
	DetectionFile = "detection_memory.json"
	// TrustFile is the filename of the trust partition document.
	TrustFile = "trust_memory.json"
	// HistoryDir is the subdirectory holding pre-overwrite snapshots.
	HistoryDir = "history"

	// backupTimeLayout is the timestamp embedded in snapshot filenames.
	backupTimeLayout = "20060102_150405"
)

// FileStore owns the two persisted partition documents and the protocol that
// mutates them. All mutating operations on one partition serialize behind a
// per-partition mutex held across the whole load→mutate→save cycle; reads
// take no lock and always see a complete document because writes go through
// a temp-file rename.
type FileStore struct {
	dir string
	mu  map[MemoryType]*sync.Mutex
}

// NewFileStore opens (or creates) the playbook directory. Missing partition
// files are initialized empty at v1.0 — an absent store is a fresh store,
// not an error.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, HistoryDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating playbook directory: %w", err)
	}

	s := &FileStore{
		dir: dir,
		mu: map[MemoryType]*sync.Mutex{
			MemoryDetection: {},
			MemoryTrust:     {},
		},
	}

	for _, m := range []MemoryType{MemoryDetection, MemoryTrust} {
		if _, err := os.Stat(s.path(m)); os.IsNotExist(err) {
			if err := s.Save(NewPlaybook(), m, false); err != nil {
				return nil, fmt.Errorf("initializing %s memory: %w", m, err)
			}
		}
	}
	return s, nil
}

// Dir returns the playbook directory the store operates on.
func (s *FileStore) Dir() string {
	return s.dir
}

// path returns the live document path for a partition.
func (s *FileStore) path(m MemoryType) string {
	if m == MemoryTrust {
		return filepath.Join(s.dir, TrustFile)
	}
	return filepath.Join(s.dir, DetectionFile)
}

// historyPath returns the snapshot path for a partition at a given version.
func (s *FileStore) historyPath(m MemoryType, version string, at time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.json", m, version, at.Format(backupTimeLayout))
	return filepath.Join(s.dir, HistoryDir, name)
}

// Load reads one partition document from disk. Rules come back tagged with
// the partition they were read from. Field-level damage is repaired silently
// (the repairs are in the returned report); a structurally broken document is
// a fatal error — run the validator out-of-band and retry.
func (s *FileStore) Load(m MemoryType) (*Playbook, *Report, error) {
	if !ValidMemory(m) {
		return nil, nil, fmt.Errorf("unknown memory type %q", m)
	}

	data, err := os.ReadFile(s.path(m))
	if err != nil {
		if os.IsNotExist(err) {
			// The file disappeared after initialization — treat like a
			// fresh store rather than failing every read.
			return NewPlaybook(), &Report{}, nil
		}
		return nil, nil, fmt.Errorf("reading %s memory: %w", m, err)
	}

	pb, rep, err := DecodePlaybook(data)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s memory: %w", m, err)
	}
	for i := range pb.Rules {
		pb.Rules[i].MemoryType = m
	}
	return pb, rep, nil
}

// Save persists a partition document. When backup is true and a live file
// exists, the current file is first copied into the history directory under
// a name encoding partition, prior version, and timestamp. The overwrite
// itself is atomic: written to a temp file in the same directory, then
// renamed over the live document.
//
// Save detects concurrent writers: if the on-disk version no longer matches
// the version this playbook was loaded at, it fails with ErrVersionConflict
// instead of silently dropping the other writer's update.
func (s *FileStore) Save(pb *Playbook, m MemoryType, backup bool) error {
	if !ValidMemory(m) {
		return fmt.Errorf("unknown memory type %q", m)
	}
	mu := s.mu[m]
	mu.Lock()
	defer mu.Unlock()
	return s.saveLocked(pb, m, backup)
}

// saveLocked is Save without acquiring the partition mutex. Apply calls it
// while already holding the lock.
func (s *FileStore) saveLocked(pb *Playbook, m MemoryType, backup bool) error {
	target := s.path(m)

	current, err := os.ReadFile(target)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s memory before save: %w", m, err)
	}

	if exists && pb.loadedVersion != "" {
		var onDisk struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(current, &onDisk); err == nil && onDisk.Version != pb.loadedVersion {
			return fmt.Errorf("%s memory changed on disk (loaded %s, found %s): %w",
				m, pb.loadedVersion, onDisk.Version, ErrVersionConflict)
		}
	}

	if backup && exists {
		snapshot := s.historyPath(m, pb.loadedVersion, time.Now())
		if pb.loadedVersion == "" {
			snapshot = s.historyPath(m, pb.Version, time.Now())
		}
		if err := os.WriteFile(snapshot, current, 0o644); err != nil {
			return fmt.Errorf("writing history snapshot: %w", err)
		}
	}

	data, err := encodePlaybook(pb)
	if err != nil {
		return fmt.Errorf("encoding %s memory: %w", m, err)
	}
	if err := atomicWrite(target, data); err != nil {
		return fmt.Errorf("writing %s memory: %w", m, err)
	}

	pb.loadedVersion = pb.Version
	return nil
}

// encodePlaybook marshals a partition document. The derived memory_type tag
// is stripped from every rule first — the document a rule lives in is the
// single source of truth for its partition.
func encodePlaybook(pb *Playbook) ([]byte, error) {
	out := struct {
		Version             string    `json:"version"`
		Rules               []Rule    `json:"rules"`
		LastUpdated         time.Time `json:"last_updated"`
		TotalCasesProcessed int       `json:"total_cases_processed"`
	}{
		Version:             pb.Version,
		Rules:               make([]Rule, len(pb.Rules)),
		LastUpdated:         pb.LastUpdated,
		TotalCasesProcessed: pb.TotalCasesProcessed,
	}
	copy(out.Rules, pb.Rules)
	for i := range out.Rules {
		out.Rules[i].MemoryType = ""
	}
	return json.MarshalIndent(out, "", "  ")
}

// atomicWrite writes data to path via a temp file and rename, so a reader
// never observes a half-written document.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".playbook-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ─── Delta engine ────────────────────────────────────────────────────────────

// Apply interprets one delta against its target partition: load, mutate,
// persist. Mutating actions bump the minor version by exactly one and
// snapshot the prior file; no_action only counts the case — no version bump,
// no snapshot, so the history directory is not inflated by null operations.
//
// The returned playbook is the partition's state after the update. The
// report carries any field coercions applied while patching.
func (s *FileStore) Apply(d *Delta) (*Playbook, *Report, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid delta: %w", err)
	}

	mu := s.mu[d.TargetMemory]
	mu.Lock()
	defer mu.Unlock()

	pb, rep, err := s.Load(d.TargetMemory)
	if err != nil {
		return nil, nil, err
	}

	if d.Action == ActionNone {
		pb.TotalCasesProcessed++
		if err := s.saveLocked(pb, d.TargetMemory, false); err != nil {
			return nil, nil, err
		}
		return pb, rep, nil
	}

	switch d.Action {
	case ActionAdd:
		if pb.FindRule(d.NewRule.RuleID) != nil {
			return nil, nil, fmt.Errorf("add_rule %q in %s memory: rule id already exists",
				d.NewRule.RuleID, d.TargetMemory)
		}
		pb.AddRule(stampRule(*d.NewRule))

	case ActionRefine:
		// A refinement is issued alongside its parent — the parent stays
		// active and untouched, so both compete until one is deprecated.
		if pb.FindRule(d.NewRule.RuleID) != nil {
			return nil, nil, fmt.Errorf("refine_rule %q in %s memory: rule id already exists",
				d.NewRule.RuleID, d.TargetMemory)
		}
		rule := stampRule(*d.NewRule)
		if rule.ParentRule == "" {
			rule.ParentRule = d.TargetRuleID
		}
		pb.AddRule(rule)

	case ActionUpdate:
		r := pb.FindRule(d.TargetRuleID)
		if r == nil {
			return nil, nil, fmt.Errorf("update_rule %q in %s memory: %w",
				d.TargetRuleID, d.TargetMemory, ErrRuleNotFound)
		}
		if err := applyFields(r, d.UpdateFields, rep); err != nil {
			return nil, nil, fmt.Errorf("update_rule %q: %w", d.TargetRuleID, err)
		}

	case ActionDeprecate:
		r := pb.FindRule(d.TargetRuleID)
		if r == nil {
			return nil, nil, fmt.Errorf("deprecate_rule %q in %s memory: %w",
				d.TargetRuleID, d.TargetMemory, ErrRuleNotFound)
		}
		r.Active = false
	}

	if err := pb.BumpVersion(); err != nil {
		return nil, nil, fmt.Errorf("bumping %s memory version: %w", d.TargetMemory, err)
	}
	pb.TotalCasesProcessed++
	pb.LastUpdated = time.Now().UTC()

	if err := s.saveLocked(pb, d.TargetMemory, true); err != nil {
		return nil, nil, err
	}
	return pb, rep, nil
}

// stampRule fills in issuance defaults on a new rule.
func stampRule(r Rule) Rule {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Active = true
	r.MemoryType = ""
	return r
}

// copyFile duplicates src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
