package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"
)

// Updater pages through a project's issues for a cache refresh.
type Updater struct {
	config *Config
	client JiraClient
}

func NewUpdater(config *Config, client JiraClient) *Updater {
	return &Updater{
		config: config,
		client: client,
	}
}

// FetchProject downloads every issue of a project with a bounded worker
// pool and returns them in search order. total comes from a prior count
// query so the page offsets are known up front and the pages can be
// fetched in parallel. The caller persists the result; holding no store
// handle here keeps the database free for launcher reads while the
// network fetch runs.
func (u *Updater) FetchProject(ctx context.Context, projectKey string, total int) ([]*Issue, error) {
	logger := GetLogger()
	logger.Debug().Int("total", total).Str("project", projectKey).Msg("Fetching project issues")

	if total == 0 {
		return nil, nil
	}

	pageSize := u.config.Jira.PageSize
	jql := fmt.Sprintf("project=%s", projectKey)

	type page struct {
		startAt int
		issues  []*Issue
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		pages    []page
		firstErr error
	)
	sem := make(chan struct{}, u.config.Jira.MaxWorkers)

	for startAt := 0; startAt < total; startAt += pageSize {
		wg.Add(1)
		sem <- struct{}{}
		go func(startAt int) {
			defer wg.Done()
			defer func() { <-sem }()

			issues, _, err := u.client.SearchPage(ctx, jql, startAt, pageSize)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			pages = append(pages, page{startAt: startAt, issues: issues})
			logger.Debug().
				Str("project", projectKey).
				Int("start_at", startAt).
				Int("fetched", len(issues)).
				Msg("Fetched issue page")
		}(startAt)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", projectKey, firstErr)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].startAt < pages[j].startAt })

	var issues []*Issue
	for _, p := range pages {
		issues = append(issues, p.issues...)
	}

	return issues, nil
}
