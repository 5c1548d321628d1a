package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Batch describes one published parquet file.
type Batch struct {
	Path       string
	Rows       int
	EpisodeIDs []string
}

// BatchWriter appends whole episodes to a parquet file staged under
// outDir/tmp and publishes it into outDir once it holds episodesPerFile
// episodes. Nothing touches the disk until the first episode arrives. It is
// not safe for concurrent use.
type BatchWriter struct {
	outDir          string
	episodesPerFile int

	cur *stagedBatch
}

type stagedBatch struct {
	tmpPath string
	outPath string
	file    *os.File
	writer  *parquet.GenericWriter[TransitionRow]
	rows    int
	ids     []string
}

func NewBatchWriter(outDir string, episodesPerFile int) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if episodesPerFile <= 0 {
		return nil, fmt.Errorf("episodes per file must be positive, got %d", episodesPerFile)
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve out dir: %w", err)
	}
	return &BatchWriter{outDir: abs, episodesPerFile: episodesPerFile}, nil
}

// Pending is the number of episodes in the staged file.
func (b *BatchWriter) Pending() int {
	if b.cur == nil {
		return 0
	}
	return len(b.cur.ids)
}

// Add writes one episode. When the staged file reaches its episode quota it
// is published and described by the returned Batch; otherwise Batch is nil.
// Episodes without rows are skipped.
func (b *BatchWriter) Add(episodeID string, rows []TransitionRow) (*Batch, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if b.cur == nil {
		cur, err := b.stage()
		if err != nil {
			return nil, err
		}
		b.cur = cur
	}
	if _, err := b.cur.writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write episode %s: %w", episodeID, err)
	}
	b.cur.rows += len(rows)
	b.cur.ids = append(b.cur.ids, episodeID)

	if len(b.cur.ids) < b.episodesPerFile {
		return nil, nil
	}
	return b.Flush()
}

// Flush publishes the staged file even if it is short of its quota. It
// returns nil when nothing is staged.
func (b *BatchWriter) Flush() (*Batch, error) {
	cur := b.cur
	if cur == nil {
		return nil, nil
	}
	b.cur = nil

	if err := cur.close(); err != nil {
		_ = os.Remove(cur.tmpPath)
		return nil, err
	}
	if err := os.Rename(cur.tmpPath, cur.outPath); err != nil {
		_ = os.Remove(cur.tmpPath)
		return nil, fmt.Errorf("publish %s: %w", filepath.Base(cur.outPath), err)
	}
	return &Batch{Path: cur.outPath, Rows: cur.rows, EpisodeIDs: cur.ids}, nil
}

// Discard drops the staged file and the episodes in it.
func (b *BatchWriter) Discard() {
	if b.cur == nil {
		return
	}
	_ = b.cur.close()
	_ = os.Remove(b.cur.tmpPath)
	b.cur = nil
}

func (b *BatchWriter) stage() (*stagedBatch, error) {
	tmpDir := filepath.Join(b.outDir, StagingDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	name := batchName()
	s := &stagedBatch{
		tmpPath: filepath.Join(tmpDir, name+".tmp"),
		outPath: filepath.Join(b.outDir, name),
	}
	f, err := os.OpenFile(s.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open staged parquet: %w", err)
	}
	s.file = f
	s.writer = parquet.NewGenericWriter[TransitionRow](f, writerOptions()...)
	return s, nil
}

func (s *stagedBatch) close() error {
	werr := s.writer.Close()
	serr := s.file.Sync()
	ferr := s.file.Close()
	switch {
	case werr != nil:
		return fmt.Errorf("close parquet writer: %w", werr)
	case serr != nil:
		return fmt.Errorf("sync parquet file: %w", serr)
	case ferr != nil:
		return fmt.Errorf("close parquet file: %w", ferr)
	}
	return nil
}
