package workspace

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher invalidates cached analysis snapshots when module files change.
// It watches the packages directory and each existing module directory;
// events map back to module ids by path prefix.
//
// The watcher is optional: the analyzer works without one, it just serves
// staler cache entries until the TTL expires.
type Watcher struct {
	ws    *Workspace
	cache *AnalysisCache
	fw    *fsnotify.Watcher
	log   *logrus.Logger
	done  chan struct{}
	once  sync.Once
}

// NewWatcher creates a watcher bound to a workspace and its analysis cache.
func NewWatcher(ws *Workspace, cache *AnalysisCache, log *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Watcher{
		ws:    ws,
		cache: cache,
		fw:    fw,
		log:   log,
		done:  make(chan struct{}),
	}, nil
}

// Start registers the watch paths and begins dispatching events. It returns
// after registration; event handling runs on a background goroutine.
func (w *Watcher) Start() error {
	if err := w.fw.Add(w.ws.PackagesDir()); err != nil {
		return err
	}
	for _, id := range KnownModules() {
		if !w.ws.ModuleDirExists(id) {
			continue
		}
		if err := w.fw.Add(w.ws.ModuleDir(id)); err != nil {
			w.log.WithFields(logrus.Fields{
				"module": id,
				"error":  err,
			}).Warn("failed to watch module directory")
		}
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if id, ok := w.moduleForPath(event.Name); ok {
				w.cache.Invalidate(id)
				w.log.WithFields(logrus.Fields{
					"module": id,
					"path":   event.Name,
					"op":     event.Op.String(),
				}).Debug("invalidated analysis cache entry")
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("workspace watcher error")
		case <-w.done:
			return
		}
	}
}

// moduleForPath maps an event path back to the owning module id.
func (w *Watcher) moduleForPath(path string) (string, bool) {
	rel, err := filepath.Rel(w.ws.PackagesDir(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 || !IsKnownModule(parts[0]) {
		return "", false
	}
	return parts[0], true
}

// Close stops event dispatch and releases the underlying watcher. It is
// safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
