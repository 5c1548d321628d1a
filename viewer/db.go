package viewer

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brensch/agarenv/store"
)

// ErrNoData means no finalized parquet file exists under any root yet.
var ErrNoData = errors.New("no transition files yet")

// DBCache keeps one DuckDB connection over the data roots and reopens it
// after refreshRate so new batches show up.
type DBCache struct {
	roots       []string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time

	// Rebuilt only when the connection is refreshed.
	index []store.EpisodeSummary
}

func NewDBCache(roots []string, refreshRate time.Duration) *DBCache {
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
	}
}

// Query runs fn against the cached connection, refreshing it first if it is
// stale. The read lock is held while fn runs, so a refresh cannot close the
// connection under an in-flight query.
func (c *DBCache) Query(fn func(db *sql.DB) error) error {
	if err := c.ensureFresh(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return ErrNoData
	}
	return fn(c.db)
}

func (c *DBCache) ensureFresh() error {
	c.mu.RLock()
	fresh := c.db != nil && time.Since(c.lastRefresh) < c.refreshRate
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return nil
	}
	return c.refreshLocked()
}

// Refresh forces a new connection. It waits for running queries to finish
// before closing the old one.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

func (c *DBCache) refreshLocked() error {
	start := time.Now()
	if !hasParquet(c.roots) {
		return ErrNoData
	}
	newDB, err := store.OpenDuckDB(c.roots...)
	if err != nil {
		return err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.index = nil

	log.Printf("DBCache refreshed in %v", time.Since(start))
	return nil
}

// Episodes returns the cached episode index, building it if needed. With no
// data yet it returns an empty index.
func (c *DBCache) Episodes(ctx context.Context) ([]store.EpisodeSummary, error) {
	c.mu.RLock()
	if c.index != nil && c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		idx := c.index
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil || time.Since(c.lastRefresh) >= c.refreshRate {
		if err := c.refreshLocked(); err != nil {
			if errors.Is(err, ErrNoData) {
				return []store.EpisodeSummary{}, nil
			}
			return nil, err
		}
	}
	if c.index != nil {
		return c.index, nil
	}

	start := time.Now()
	episodes, err := store.QueryEpisodes(ctx, c.db)
	if err != nil {
		return nil, err
	}
	if episodes == nil {
		episodes = []store.EpisodeSummary{}
	}
	c.index = episodes
	log.Printf("Episode index rebuilt: %d episodes in %v", len(episodes), time.Since(start))
	return c.index, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.index = nil
	return err
}

// hasParquet reports whether any root holds a finalized parquet file outside
// its staging dir.
func hasParquet(roots []string) bool {
	found := false
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		staging := filepath.Join(root, store.StagingDir)
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path == staging {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(d.Name(), ".parquet") {
				found = true
				return filepath.SkipAll
			}
			return nil
		})
		if found {
			return true
		}
	}
	return false
}

func normalizeSort(sortKey, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	switch sk {
	case "id", "episode", "episode_id":
		sk = "episode_id"
	case "steps":
		sk = "steps"
	case "reward", "total_reward":
		sk = "reward"
	case "mass", "final_mass":
		sk = "mass"
	case "agents":
		sk = "agents"
	default:
		sk = "reward"
		sd = "desc"
	}
	return sk, sd
}

func paginateEpisodes(episodes []store.EpisodeSummary, limit, offset int, sortKey, sortDir string) []store.EpisodeSummary {
	sk, sd := normalizeSort(sortKey, sortDir)

	sorted := make([]store.EpisodeSummary, len(episodes))
	copy(sorted, episodes)

	less := func(a, b store.EpisodeSummary) bool {
		switch sk {
		case "episode_id":
			return a.EpisodeID < b.EpisodeID
		case "steps":
			return a.Steps < b.Steps
		case "mass":
			return a.FinalMass < b.FinalMass
		case "agents":
			return a.Agents < b.Agents
		}
		return a.TotalReward < b.TotalReward
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sd == "desc" {
			return less(sorted[j], sorted[i])
		}
		return less(sorted[i], sorted[j])
	})

	if offset >= len(sorted) {
		return []store.EpisodeSummary{}
	}
	end := len(sorted)
	if limit < end-offset {
		end = offset + limit
	}
	return sorted[offset:end]
}

// StepRecord is one agent's row of an episode, without the feature vector.
type StepRecord struct {
	Step    int32   `json:"step"`
	Agent   int32   `json:"agent"`
	TargetX float32 `json:"target_x"`
	TargetY float32 `json:"target_y"`
	Command int32   `json:"command"`
	Reward  float32 `json:"reward"`
	Done    bool    `json:"done"`
	Mass    float32 `json:"mass"`
}

// queryEpisodeSteps returns sql.ErrNoRows for an unknown episode.
func queryEpisodeSteps(ctx context.Context, db *sql.DB, episodeID string) ([]StepRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT step::INTEGER, agent::INTEGER, target_x, target_y, command::INTEGER, reward, done, mass
		 FROM transitions
		 WHERE episode_id = ?
		 ORDER BY step ASC, agent ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StepRecord, 0, 256)
	for rows.Next() {
		var s StepRecord
		if err := rows.Scan(&s.Step, &s.Agent, &s.TargetX, &s.TargetY, &s.Command, &s.Reward, &s.Done, &s.Mass); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out, nil
}
