package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"kwatch/internal/monitoring/interfaces"
	"kwatch/internal/providers"
)

// Snapshot is the archived page capture stored when a keyword was found,
// kept for audit so users can see what the page looked like at match time.
type Snapshot struct {
	MonitorID     string    `json:"monitor_id"`
	CheckResultID string    `json:"check_result_id"`
	CapturedAt    time.Time `json:"captured_at"`
	Body          []byte    `json:"body"`
}

// SnapshotStore persists zstd-compressed page snapshots under one
// directory per monitor. Writes go through a temp file and rename so a
// crash never leaves a torn snapshot behind.
type SnapshotStore struct {
	dir        string
	compressor interfaces.CompressorInterface
	logger     providers.Logger
}

func NewSnapshotStore(dir string, compressor interfaces.CompressorInterface, logger providers.Logger) *SnapshotStore {
	return &SnapshotStore{dir: dir, compressor: compressor, logger: logger}
}

func (ss *SnapshotStore) path(monitorID, checkResultID string) string {
	return filepath.Join(ss.dir, monitorID, checkResultID+".zst")
}

func (ss *SnapshotStore) Save(snap *Snapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	data, err := ss.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	fileName := ss.path(snap.MonitorID, snap.CheckResultID)
	if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return err
	}

	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, fileName)
}

func (ss *SnapshotStore) Load(monitorID, checkResultID string) (*Snapshot, error) {
	data, err := os.ReadFile(ss.path(monitorID, checkResultID))
	if err != nil {
		return nil, err
	}
	jsonData, err := ss.compressor.Decompress(data)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(jsonData, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Prune removes snapshots captured before the cutoff, mirroring the
// check-result retention window. Returns the number of files removed.
func (ss *SnapshotStore) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(ss.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".zst") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				ss.logger.Warnf(providers.TypeApp, "Failed to prune snapshot %s: %s", path, err)
				return nil
			}
			removed++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return removed, nil
	}
	return removed, err
}
