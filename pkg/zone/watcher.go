package zone

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

// nodeFile is the on-disk shape of a zone assignment file.
type nodeFile struct {
	Nodes map[string]NodeInfo `yaml:"nodes"`
}

// ParseFile reads a zone assignment file.
func ParseFile(path string) (map[string]NodeInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone file: %w", err)
	}

	var f nodeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse zone file: %w", err)
	}

	for id, info := range f.Nodes {
		if !info.Zone.Valid() {
			return nil, fmt.Errorf("node %q has invalid zone %d", id, info.Zone)
		}
	}
	return f.Nodes, nil
}

// Watcher hot-reloads the directory's static node table when the zone
// file changes on disk. Fleets change; restarting every node to adjust a
// trust assignment would not be acceptable.
type Watcher struct {
	path    string
	dir     *Directory
	watcher *fsnotify.Watcher
	log     *telemetry.Logger
	done    chan struct{}
}

// NewWatcher starts watching the given zone file. The containing directory
// is watched rather than the file itself, so atomic rename-style rewrites
// are picked up.
func NewWatcher(path string, dir *Directory, logger *telemetry.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		dir:     dir,
		watcher: fw,
		log:     logger.NewComponentLogger("zone-watcher"),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			nodes, err := ParseFile(w.path)
			if err != nil {
				// Keep the last good table on a broken edit.
				w.log.WithError(err).Warn("zone file reload failed")
				continue
			}
			w.dir.Reload(nodes)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("zone file watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
