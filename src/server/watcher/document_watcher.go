package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
)

// Op is the kind of change observed on a document
type Op string

const (
	OpWrite  Op = "write"
	OpCreate Op = "create"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// DocumentChange is one debounced change to a watched document
type DocumentChange struct {
	Path string
	Op   Op
}

// DocumentWatcher watches files and directories for changes to documents
// with the configured extensions. Bursts of events are debounced and
// delivered as one batch, sorted by path, with the last operation per path.
type DocumentWatcher struct {
	watcher       *fsnotify.Watcher
	watchPaths    []string
	extensions    map[string]bool
	onChange      func([]DocumentChange)
	debounceDelay time.Duration

	pending       map[string]Op
	eventMutex    sync.Mutex
	deliverMutex  sync.Mutex
	debounceTimer *time.Timer

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewDocumentWatcher creates a watcher for files with the given extensions
func NewDocumentWatcher(extensions []string, onChange func([]DocumentChange)) (*DocumentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &DocumentWatcher{
		watcher:       watcher,
		extensions:    exts,
		onChange:      onChange,
		debounceDelay: constants.FileWatchDebounceDelay,
		pending:       make(map[string]Op),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}, nil
}

// AddPath watches a file, or a directory tree minus skipped directories
func (dw *DocumentWatcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := dw.watcher.Add(absPath); err != nil {
		return err
	}

	dw.watchPaths = append(dw.watchPaths, absPath)
	common.LSPLogger.Debug("DocumentWatcher: Added watch path: %s", absPath)

	if err := dw.addSubdirectories(absPath); err != nil {
		common.LSPLogger.Warn("Failed to add subdirectories for %s: %v", absPath, err)
	}
	return nil
}

// WatchPaths returns the absolute paths passed to AddPath
func (dw *DocumentWatcher) WatchPaths() []string {
	return append([]string{}, dw.watchPaths...)
}

func (dw *DocumentWatcher) addSubdirectories(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() || path == root {
			return nil
		}
		if skipDirectory(filepath.Base(path)) {
			return filepath.SkipDir
		}
		if err := dw.watcher.Add(path); err != nil {
			common.LSPLogger.Warn("Failed to watch directory %s: %v", path, err)
		}
		return nil
	})
}

func skipDirectory(name string) bool {
	return constants.SkipDirectories[name] || strings.HasPrefix(name, ".")
}

// ListDocuments returns the files under root with one of the extensions,
// sorted, skipping the same directories the watcher skips. A file root is
// returned as is.
func ListDocuments(root string, extensions []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirectory(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Start begins watching for changes
func (dw *DocumentWatcher) Start() {
	dw.started = true
	go dw.watchLoop()
}

func (dw *DocumentWatcher) watchLoop() {
	defer close(dw.done)

	for {
		select {
		case <-dw.ctx.Done():
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if !dw.shouldProcess(event.Name) {
				continue
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			common.LSPLogger.Error("DocumentWatcher error: %v", err)
		}
	}
}

// shouldProcess filters by extension; new directories are watched instead
func (dw *DocumentWatcher) shouldProcess(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if skipDirectory(filepath.Base(path)) {
			return false
		}
		if err := dw.watcher.Add(path); err != nil {
			common.LSPLogger.Warn("Failed to watch new directory %s: %v", path, err)
		}
		if err := dw.addSubdirectories(path); err != nil {
			common.LSPLogger.Warn("Failed to add new directory %s: %v", path, err)
		}
		return false
	}
	return dw.extensions[strings.ToLower(filepath.Ext(path))]
}

func (dw *DocumentWatcher) handleEvent(event fsnotify.Event) {
	var op Op
	switch {
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Remove):
		op = OpRemove
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	dw.eventMutex.Lock()
	defer dw.eventMutex.Unlock()

	dw.pending[event.Name] = op
	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
	}
	dw.debounceTimer = time.AfterFunc(dw.debounceDelay, dw.flushEvents)
}

// flushEvents delivers pending changes. Deliveries never overlap.
func (dw *DocumentWatcher) flushEvents() {
	dw.deliverMutex.Lock()
	defer dw.deliverMutex.Unlock()

	dw.eventMutex.Lock()
	if len(dw.pending) == 0 {
		dw.eventMutex.Unlock()
		return
	}
	changes := make([]DocumentChange, 0, len(dw.pending))
	for path, op := range dw.pending {
		changes = append(changes, DocumentChange{Path: path, Op: op})
	}
	dw.pending = make(map[string]Op)
	dw.eventMutex.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	if dw.onChange != nil {
		common.LSPLogger.Debug("DocumentWatcher: Flushing %d document changes", len(changes))
		dw.onChange(changes)
	}
}

// Stop flushes pending changes and stops watching
func (dw *DocumentWatcher) Stop() error {
	dw.cancel()

	dw.eventMutex.Lock()
	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
	}
	dw.eventMutex.Unlock()
	dw.flushEvents()

	err := dw.watcher.Close()
	if dw.started {
		<-dw.done
	}
	return err
}

// SetDebounceDelay sets the debounce delay for change events
func (dw *DocumentWatcher) SetDebounceDelay(delay time.Duration) {
	dw.eventMutex.Lock()
	dw.debounceDelay = delay
	dw.eventMutex.Unlock()
}
