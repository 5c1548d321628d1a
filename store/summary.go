package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// EpisodeSummary aggregates the transitions of one episode.
type EpisodeSummary struct {
	EpisodeID   string  `json:"episode_id"`
	Difficulty  string  `json:"difficulty"`
	ObsType     string  `json:"obs_type"`
	Policy      string  `json:"policy"`
	Agents      int     `json:"agents"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	FinalMass   float64 `json:"final_mass"`
	AllDone     bool    `json:"all_done"`
}

// OpenDuckDB opens an in-memory DuckDB with a "transitions" view over every
// finalized parquet file under the given roots. Files still staged in a
// root's own tmp/ directory are excluded; other directories named tmp are
// not special.
func OpenDuckDB(roots ...string) (*sql.DB, error) {
	globs := make([]string, 0, len(roots))
	staged := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		glob := filepath.Join(abs, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
		prefix := filepath.Join(abs, StagingDir) + string(filepath.Separator)
		staged = append(staged, "NOT starts_with(filename, '"+escapeSQLString(prefix)+"')")
	}
	if len(globs) == 0 {
		return nil, fmt.Errorf("no parquet roots given")
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	sqlText := `CREATE OR REPLACE VIEW transitions AS
		SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
		WHERE ` + strings.Join(staged, " AND ")
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create transitions view: %w", err)
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Summarize returns one summary per episode found under dir, ordered by
// episode ID. Steps counts tick-groups (max step + 1); FinalMass sums the
// mass of every agent at its last recorded step.
func Summarize(ctx context.Context, dir string) ([]EpisodeSummary, error) {
	db, err := OpenDuckDB(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return QueryEpisodes(ctx, db)
}

// QueryEpisodes runs the episode aggregation against an open view.
func QueryEpisodes(ctx context.Context, db *sql.DB) ([]EpisodeSummary, error) {
	query := `WITH last_steps AS (
		SELECT episode_id, agent, mass, done
		FROM (
			SELECT episode_id, agent, mass, done,
				row_number() OVER (PARTITION BY episode_id, agent ORDER BY step DESC) AS rn
			FROM transitions
		)
		WHERE rn = 1
	),
	finals AS (
		SELECT episode_id,
			SUM(mass)::DOUBLE AS final_mass,
			bool_and(done) AS all_done
		FROM last_steps
		GROUP BY episode_id
	)
	SELECT
		t.episode_id,
		MIN(t.difficulty)::VARCHAR,
		MIN(t.obs_type)::VARCHAR,
		MIN(t.policy)::VARCHAR,
		COUNT(DISTINCT t.agent)::INTEGER,
		(MAX(t.step) + 1)::INTEGER,
		SUM(t.reward)::DOUBLE,
		MIN(f.final_mass)::DOUBLE,
		bool_and(f.all_done)
	FROM transitions t
	JOIN finals f ON t.episode_id = f.episode_id
	GROUP BY t.episode_id
	ORDER BY t.episode_id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeSummary
	for rows.Next() {
		var s EpisodeSummary
		if err := rows.Scan(&s.EpisodeID, &s.Difficulty, &s.ObsType, &s.Policy,
			&s.Agents, &s.Steps, &s.TotalReward, &s.FinalMass, &s.AllDone); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
