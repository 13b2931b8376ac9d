package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagingClient serves a fixed issue list page by page.
type pagingClient struct {
	JiraClient

	mu     sync.Mutex
	all    []*Issue
	starts []int
	fail   bool
}

func (p *pagingClient) SearchPage(ctx context.Context, jql string, startAt, maxResults int) ([]*Issue, int, error) {
	p.mu.Lock()
	p.starts = append(p.starts, startAt)
	p.mu.Unlock()

	if p.fail {
		return nil, 0, fmt.Errorf("jira is down")
	}

	end := startAt + maxResults
	if end > len(p.all) {
		end = len(p.all)
	}
	if startAt >= len(p.all) {
		return nil, len(p.all), nil
	}
	return p.all[startAt:end], len(p.all), nil
}

func updaterFixture(t *testing.T, total, pageSize, workers int) (*Updater, *pagingClient) {
	t.Helper()

	config := DefaultConfig()
	config.Jira.PageSize = pageSize
	config.Jira.MaxWorkers = workers

	client := &pagingClient{}
	for i := 0; i < total; i++ {
		client.all = append(client.all, &Issue{
			Key:     fmt.Sprintf("AB-%d", i+1),
			Summary: fmt.Sprintf("Issue %d", i+1),
		})
	}

	return NewUpdater(config, client), client
}

func TestFetchProjectAllPagesInOrder(t *testing.T) {
	updater, client := updaterFixture(t, 23, 10, 3)

	issues, err := updater.FetchProject(context.Background(), "AB", 23)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 10, 20}, client.starts)

	// Pages concatenate in offset order regardless of fetch order
	require.Len(t, issues, 23)
	assert.Equal(t, "AB-1", issues[0].Key)
	assert.Equal(t, "AB-11", issues[10].Key)
	assert.Equal(t, "AB-23", issues[22].Key)
}

func TestFetchProjectEmpty(t *testing.T) {
	updater, client := updaterFixture(t, 0, 10, 3)

	issues, err := updater.FetchProject(context.Background(), "AB", 0)
	require.NoError(t, err)
	assert.Nil(t, issues)
	assert.Empty(t, client.starts, "no pages requested for an empty project")
}

func TestFetchProjectPropagatesPageErrors(t *testing.T) {
	updater, client := updaterFixture(t, 23, 10, 3)
	client.fail = true

	_, err := updater.FetchProject(context.Background(), "AB", 23)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AB")
}
