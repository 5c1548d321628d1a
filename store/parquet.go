package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// Schema is written into every file's key/value metadata.
const Schema = "agar_transition_v1"

// TransitionRow is one agent's step of one episode.
//
// Features is the fixed-length vector the policy saw before acting; its
// length is the same for every row of a file. Reward and Done are what the
// environment returned for the action.
type TransitionRow struct {
	EpisodeID  string `parquet:"episode_id,dict"`
	Step       int32  `parquet:"step"`
	Agent      int32  `parquet:"agent"`
	Difficulty string `parquet:"difficulty,dict"`
	ObsType    string `parquet:"obs_type,dict"`
	Policy     string `parquet:"policy,dict"`

	Features []float32 `parquet:"features"`

	TargetX float32 `parquet:"target_x"`
	TargetY float32 `parquet:"target_y"`
	Command int32   `parquet:"command"`

	Reward float32 `parquet:"reward"`
	Done   bool    `parquet:"done"`
	Mass   float32 `parquet:"mass"`
}

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("features"),
		parquet.KeyValueMetadata("schema", Schema),
	}
}

// StagingDir holds files that are still being written, relative to an
// output root. Readers ignore it.
const StagingDir = "tmp"

func batchName() string {
	return fmt.Sprintf("batch_%d_%s.parquet", time.Now().UnixNano(), uuid.NewString()[:8])
}

// WriteBatchParquetAtomic writes rows into the staging dir and then renames the
// file into outDir, so readers never see a partial file.
func WriteBatchParquetAtomic(outDir string, rows []TransitionRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, StagingDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writerOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadRows loads every row of one file.
func ReadRows(path string) ([]TransitionRow, error) {
	rows, err := parquet.ReadFile[TransitionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
