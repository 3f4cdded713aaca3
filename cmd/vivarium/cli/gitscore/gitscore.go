// Package gitscore ranks folders by recent version-control edit frequency.
//
// This is an external, read-only data source for the sync engine: it is
// recomputed on a TTL off the ingest path, merged into read endpoints only,
// and every failure degrades to the previous cached result. Nothing here
// may propagate an error into event processing.
package gitscore

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
)

// DefaultTTL is how long a computed ranking stays fresh. A post-commit
// notification invalidates it early.
const DefaultTTL = 60 * time.Second

// Scan bounds. Commit weight decays with log position so the most recent
// edits dominate the ranking.
const (
	maxCommits         = 50
	maxFolders         = 10
	maxRecentPerFolder = 5
	maxFilesPerCommit  = 100 // skip pathological commits (vendored imports)
)

// FolderScore is one ranked folder.
type FolderScore struct {
	Folder      string   `json:"folder"`
	Score       float64  `json:"score"`
	RecentFiles []string `json:"recentFiles"`
}

// Cache computes and caches folder scores for one repository.
type Cache struct {
	repoPath string
	ttl      time.Duration

	mu         sync.Mutex
	scores     []FolderScore
	computedAt time.Time
}

// New returns a cache for the repository at repoPath.
func New(repoPath string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{repoPath: repoPath, ttl: ttl}
}

// Scores returns the current ranking, recomputing when the TTL has lapsed.
// On any git failure the previous result is returned unchanged.
func (c *Cache) Scores(ctx context.Context) []FolderScore {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.computedAt.IsZero() && time.Since(c.computedAt) < c.ttl {
		return c.scores
	}

	logCtx := logging.WithComponent(ctx, "gitscore")
	start := time.Now()
	scores, err := compute(c.repoPath)
	if err != nil {
		logging.Warn(logCtx, "git scan failed, keeping cached scores",
			slog.String("repo", c.repoPath),
			slog.Any("error", err),
		)
		// Bump computedAt anyway so a broken repo is not re-scanned on
		// every read.
		c.computedAt = time.Now()
		return c.scores
	}

	c.scores = scores
	c.computedAt = time.Now()
	logging.LogDuration(logCtx, slog.LevelDebug, "git scores recomputed", start,
		slog.Int("folders", len(scores)),
	)
	return c.scores
}

// Invalidate expires the cache so the next read recomputes. Called from the
// post-commit notification endpoint.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.computedAt = time.Time{}
	c.mu.Unlock()
}

func compute(repoPath string) ([]FolderScore, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	type folderAcc struct {
		score float64
		files []string
		seen  map[string]bool
	}
	acc := make(map[string]*folderAcc)

	pos := 0
	err = iter.ForEach(func(commit *object.Commit) error {
		if pos >= maxCommits {
			return storer.ErrStop
		}
		pos++
		weight := 1.0 / float64(pos)

		stats, statErr := commit.Stats()
		if statErr != nil {
			return nil // merge commits and friends; skip
		}
		if len(stats) > maxFilesPerCommit {
			return nil
		}
		for _, fs := range stats {
			folder := path.Dir(fs.Name)
			a, ok := acc[folder]
			if !ok {
				a = &folderAcc{seen: make(map[string]bool)}
				acc[folder] = a
			}
			a.score += weight
			name := path.Base(fs.Name)
			if !a.seen[name] && len(a.files) < maxRecentPerFolder {
				a.seen[name] = true
				a.files = append(a.files, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scores := make([]FolderScore, 0, len(acc))
	for folder, a := range acc {
		scores = append(scores, FolderScore{Folder: folder, Score: a.score, RecentFiles: a.files})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Folder < scores[j].Folder
	})
	if len(scores) > maxFolders {
		scores = scores[:maxFolders]
	}
	return scores, nil
}
