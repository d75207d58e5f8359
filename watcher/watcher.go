// Package watcher turns raw filesystem events on the credential files
// into debounced renewal requests. Bursts of writes to the same path
// (editors and the AWS CLI both truncate-then-rewrite, or write a temp
// file and rename it over the target) collapse into a single request
// once the path has been quiet for the stability window.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/mirrorbucket/credmon/metrics"
	"github.com/mirrorbucket/credmon/renewal"
)

// Options configures a Watcher.
type Options struct {
	CredentialsFile string
	ConfigFile      string
	SSOCacheDir     string

	// Window is how long a path must stay quiet before its pending
	// change is emitted.
	Window time.Duration

	// ScanOnStart emits a file-added request for every watched file
	// that already exists and is non-empty when the watcher starts.
	// Some deployments want a renewal check forced at boot, others
	// already hold valid credentials and do not.
	ScanOnStart bool
}

// Watcher observes the credential files and reports semantic change
// events to a renewal sink.
type Watcher struct {
	opts Options
	sink renewal.Sink
	fsw  *fsnotify.Watcher
}

// pending is an observed-but-not-yet-emitted change for one path.
type pending struct {
	reason   renewal.Reason
	deadline time.Time
}

// New creates a Watcher. The SSO cache directory is created if absent
// (the AWS CLI does the same on first login) so it can be watched from
// process start; the credential files themselves are never created.
func New(opts Options, sink renewal.Sink) (*Watcher, error) {
	if err := os.MkdirAll(opts.SSOCacheDir, 0o750); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	awsDir := filepath.Dir(opts.CredentialsFile)
	if err := fsw.Add(awsDir); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(opts.SSOCacheDir); err != nil {
		fsw.Close()
		return nil, err
	}
	// The watch on the cache dir dies with the dir if a login flow wipes
	// it; its parent is watched so the recreation is seen and the watch
	// can be re-added.
	if err := fsw.Add(filepath.Dir(opts.SSOCacheDir)); err != nil {
		fsw.Close()
		return nil, err
	}

	log.Info().Str("dir", awsDir).Str("sso_cache", opts.SSOCacheDir).Msg("Watching credential files")
	return &Watcher{opts: opts, sink: sink, fsw: fsw}, nil
}

// Run processes filesystem events until the done channel is closed.
// It always returns nil: watch-level errors degrade detection to the
// periodic scheduler instead of stopping the process.
func (w *Watcher) Run(done <-chan struct{}) error {
	defer w.fsw.Close()

	if w.opts.ScanOnStart {
		w.initialScan()
	}

	pendings := make(map[string]*pending)
	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func() {
		if timer != nil {
			timer.Stop()
		}
		var earliest time.Time
		for _, p := range pendings {
			if earliest.IsZero() || p.deadline.Before(earliest) {
				earliest = p.deadline
			}
		}
		if earliest.IsZero() {
			timer, timerC = nil, nil
			return
		}
		wait := time.Until(earliest)
		if wait < 0 {
			wait = 0
		}
		timer = time.NewTimer(wait)
		timerC = timer.C
	}

	for {
		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, pendings)
			arm()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Filesystem watch error, periodic check remains active")

		case <-timerC:
			now := time.Now()
			for path, p := range pendings {
				if p.deadline.After(now) {
					continue
				}
				delete(pendings, path)
				w.emit(p.reason, path, now)
			}
			arm()
		}
	}
}

// handleEvent folds one raw fsnotify event into the pending map.
func (w *Watcher) handleEvent(event fsnotify.Event, pendings map[string]*pending) {
	// A recreated SSO cache directory must be re-added to the watch.
	// The event arrives via the watch on its parent directory.
	if event.Has(fsnotify.Create) && event.Name == w.opts.SSOCacheDir {
		if err := w.fsw.Add(w.opts.SSOCacheDir); err != nil {
			log.Warn().Err(err).Msg("Failed to re-watch SSO cache directory")
		}
		return
	}

	if !w.relevant(event.Name) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return
	}

	p := pendings[event.Name]
	if p == nil {
		p = &pending{}
		pendings[event.Name] = p
	}
	p.reason = mergeReason(p.reason, event.Op)
	p.deadline = time.Now().Add(w.opts.Window)
	log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Credential file event")
}

// relevant reports whether a path belongs to a watch target.
func (w *Watcher) relevant(path string) bool {
	if path == w.opts.CredentialsFile || path == w.opts.ConfigFile {
		return true
	}
	return strings.HasPrefix(path, w.opts.SSOCacheDir+string(filepath.Separator))
}

// mergeReason combines a pending reason with a new raw operation. The
// key case is remove-then-recreate within the window, which must read
// as a single change rather than a removal.
func mergeReason(current renewal.Reason, op fsnotify.Op) renewal.Reason {
	switch {
	case op.Has(fsnotify.Create):
		if current == renewal.ReasonFileRemoved {
			return renewal.ReasonFileChanged
		}
		if current == "" {
			return renewal.ReasonFileAdded
		}
		return current
	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		return renewal.ReasonFileRemoved
	default: // write, chmod
		switch current {
		case renewal.ReasonFileAdded:
			return renewal.ReasonFileAdded
		default:
			return renewal.ReasonFileChanged
		}
	}
}

// initialScan raises a file-added request for watch targets that are
// already populated at startup.
func (w *Watcher) initialScan() {
	now := time.Now()
	for _, path := range []string{w.opts.CredentialsFile, w.opts.ConfigFile} {
		if nonEmptyFile(path) {
			w.emit(renewal.ReasonFileAdded, path, now)
		}
	}
	entries, err := os.ReadDir(w.opts.SSOCacheDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.opts.SSOCacheDir, entry.Name())
		if nonEmptyFile(path) {
			w.emit(renewal.ReasonFileAdded, path, now)
		}
	}
}

func (w *Watcher) emit(reason renewal.Reason, path string, now time.Time) {
	log.Info().Str("path", path).Str("reason", string(reason)).Msg("Detected change in credentials")
	metrics.WatchEvents.WithLabelValues(string(reason)).Inc()
	w.sink.Request(renewal.Request{Reason: reason, Source: path, RaisedAt: now})
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
