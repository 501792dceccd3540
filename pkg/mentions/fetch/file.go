package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// candidatesFile is the on-disk layout. JSON documents parse as well since
// JSON is a subset of YAML; files ending in .jsonc may also carry comments
// and trailing commas.
//
//	scopes:
//	  owner-123:
//	    - id: u1
//	      handle: alice
//	      display_name: Alice A
type candidatesFile struct {
	Scopes map[string][]mentions.Candidate `yaml:"scopes"`
}

// FileFetcher serves candidates from a local YAML or JSON file.
type FileFetcher struct {
	path string

	mu     sync.RWMutex
	scopes map[string][]mentions.Candidate
}

// LoadFileFetcher reads and parses path.
func LoadFileFetcher(path string) (*FileFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".jsonc") {
		data = jsonc.ToJSON(data)
	}

	f, err := ParseCandidatesFile(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.path = path
	return f, nil
}

// ParseCandidatesFile parses a candidates document.
func ParseCandidatesFile(data []byte) (*FileFetcher, error) {
	var doc candidatesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	for scope, list := range doc.Scopes {
		for i, c := range list {
			if c.ID == "" {
				return nil, fmt.Errorf("scope %q: candidate %d has no id", scope, i)
			}
		}
	}

	if doc.Scopes == nil {
		doc.Scopes = map[string][]mentions.Candidate{}
	}
	return &FileFetcher{scopes: doc.Scopes}, nil
}

// Scopes returns the number of scopes in the file.
func (f *FileFetcher) Scopes() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.scopes)
}

// Reload re-reads the file. On error the previous contents stay in place.
func (f *FileFetcher) Reload() error {
	if f.path == "" {
		return fmt.Errorf("candidates were not loaded from a file")
	}
	next, err := LoadFileFetcher(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.scopes = next.scopes
	f.mu.Unlock()
	return nil
}

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file by rename are seen.
// onReload, if non-nil, is called after every reload attempt.
func (f *FileFetcher) Watch(ctx context.Context, onReload func(error)) error {
	if f.path == "" {
		return fmt.Errorf("candidates were not loaded from a file")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(f.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onReload != nil {
				onReload(fmt.Errorf("watcher: %w", err))
			}

		case <-pending:
			pending = nil
			err := f.Reload()
			if onReload != nil {
				onReload(err)
			}
		}
	}
}

// FetchMentionCandidates implements directory.Fetcher. An unknown scope is
// reported as an unsuccessful result so the directory does not cache it.
func (f *FileFetcher) FetchMentionCandidates(ctx context.Context, scope string) (*directory.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	list, ok := f.scopes[scope]
	f.mu.RUnlock()
	if !ok {
		return &directory.FetchResult{
			Success: false,
			Error:   fmt.Sprintf("no candidates configured for scope %q", scope),
		}, nil
	}

	out := make([]mentions.Candidate, len(list))
	copy(out, list)
	return &directory.FetchResult{Success: true, Data: out}, nil
}
