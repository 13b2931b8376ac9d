package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"

	bolt "go.etcd.io/bbolt"
)

const (
	issuesBucket   = "issues"
	metadataBucket = "metadata"
	stateBucket    = "state"

	cachedAtKey      = "cached_at"
	recentKey        = "recent"
	activeProjectKey = "active_project"
	clipboardKey     = "clipboard"
	projectListKey   = "_projects"
)

type storage struct {
	db     *bolt.DB
	config *StorageConfig
}

func NewStorage(config *StorageConfig) (Storage, error) {
	dbDir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(config.DatabasePath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(issuesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metadataBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(stateBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &storage{
		db:     db,
		config: config,
	}, nil
}

func (s *storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveIssues replaces the cached issue list for a project and stamps
// the cache time.
func (s *storage) SaveIssues(projectKey string, issues []*Issue) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(issuesBucket))

		// Drop the previous cache for this project first
		prefix := []byte(fmt.Sprintf("%s:", projectKey))
		c := bucket.Cursor()
		for k, _ := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, _ = c.Next() {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		for _, issue := range issues {
			key := []byte(fmt.Sprintf("%s:%s", projectKey, issue.Key))
			data, err := json.Marshal(issue)
			if err != nil {
				return fmt.Errorf("failed to marshal issue %s: %w", issue.Key, err)
			}
			if err := bucket.Put(key, data); err != nil {
				return fmt.Errorf("failed to save issue %s: %w", issue.Key, err)
			}
		}

		metaBucket := tx.Bucket([]byte(metadataBucket))
		stampKey := []byte(fmt.Sprintf("%s:%s", projectKey, cachedAtKey))
		stamp, _ := time.Now().MarshalBinary()
		return metaBucket.Put(stampKey, stamp)
	})
}

func (s *storage) LoadIssues(projectKey string) ([]*Issue, error) {
	var issues []*Issue

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(issuesBucket))
		prefix := []byte(fmt.Sprintf("%s:", projectKey))

		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var issue Issue
			if err := json.Unmarshal(v, &issue); err != nil {
				continue
			}
			issues = append(issues, &issue)
		}

		return nil
	})

	return issues, err
}

// CacheAge returns the age of a project cache in seconds, or -1 when
// the project has never been cached.
func (s *storage) CacheAge(projectKey string) (int64, error) {
	var cachedAt time.Time

	err := s.db.View(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket([]byte(metadataBucket))
		key := []byte(fmt.Sprintf("%s:%s", projectKey, cachedAtKey))
		data := metaBucket.Get(key)

		if data == nil {
			return nil
		}

		return cachedAt.UnmarshalBinary(data)
	})

	if err != nil {
		return -1, err
	}

	if cachedAt.IsZero() {
		return -1, nil
	}

	return int64(time.Since(cachedAt).Seconds()), nil
}

func (s *storage) InvalidateCache(projectKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket([]byte(metadataBucket))
		return metaBucket.Delete([]byte(fmt.Sprintf("%s:%s", projectKey, cachedAtKey)))
	})
}

// SaveProjectList caches the full project list and stamps it.
func (s *storage) SaveProjectList(projects []*Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		data, err := json.Marshal(projects)
		if err != nil {
			return fmt.Errorf("failed to marshal project list: %w", err)
		}
		if err := bucket.Put([]byte(projectListKey), data); err != nil {
			return err
		}

		metaBucket := tx.Bucket([]byte(metadataBucket))
		stampKey := []byte(fmt.Sprintf("%s:%s", projectListKey, cachedAtKey))
		stamp, _ := time.Now().MarshalBinary()
		return metaBucket.Put(stampKey, stamp)
	})
}

func (s *storage) ProjectList() ([]*Project, error) {
	var projects []*Project

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		data := bucket.Get([]byte(projectListKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &projects)
	})

	return projects, err
}

// ProjectListAge returns the project list cache age in seconds, or -1
// when it was never cached.
func (s *storage) ProjectListAge() (int64, error) {
	return s.CacheAge(projectListKey)
}

func (s *storage) RecentKeys() ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		data := bucket.Get([]byte(recentKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &keys)
	})

	return keys, err
}

func (s *storage) SetRecentKeys(keys []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		data, err := json.Marshal(keys)
		if err != nil {
			return fmt.Errorf("failed to marshal recent keys: %w", err)
		}
		return bucket.Put([]byte(recentKey), data)
	})
}

func (s *storage) ActiveProject() (*Project, error) {
	var project *Project

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		data := bucket.Get([]byte(activeProjectKey))
		if data == nil {
			return nil
		}
		project = &Project{}
		return json.Unmarshal(data, project)
	})

	return project, err
}

func (s *storage) SetActiveProject(project *Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		if project == nil {
			return bucket.Delete([]byte(activeProjectKey))
		}
		data, err := json.Marshal(project)
		if err != nil {
			return fmt.Errorf("failed to marshal active project: %w", err)
		}
		return bucket.Put([]byte(activeProjectKey), data)
	})
}

func (s *storage) Clipboard() (string, error) {
	var data string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		if v := bucket.Get([]byte(clipboardKey)); v != nil {
			data = string(v)
		}
		return nil
	})

	return data, err
}

func (s *storage) SetClipboard(data string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		return bucket.Put([]byte(clipboardKey), []byte(data))
	})
}

func (s *storage) ClearClipboard() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		return bucket.Delete([]byte(clipboardKey))
	})
}
