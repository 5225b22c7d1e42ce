package ratelimit

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// policyFile is the YAML shape of a limits config file:
//
//	scopes:
//	  collect:
//	    limit: 120
//	    window: 1m
//	  analytics:
//	    limit: 60
//	    window: 1m
type policyFile struct {
	Scopes map[string]struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"scopes"`
}

// Loader reads scope policies from a YAML file and watches it for changes,
// replacing the live Policies on every successful reload. Ceilings can be
// tuned without restarting the service.
type Loader struct {
	path     string
	policies *Policies
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
}

// NewLoader performs the initial load into policies and returns the loader.
func NewLoader(path string, policies *Policies, logger zerolog.Logger) (*Loader, error) {
	l := &Loader{path: path, policies: policies, logger: logger}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch starts a background goroutine that hot-reloads the file on writes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("limits watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("limits watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		l.run(w.Events, w.Errors, done)
	}()

	return func() { close(done) }, nil
}

func (l *Loader) run(events <-chan fsnotify.Event, errs <-chan error, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := l.load(); err != nil {
					l.logger.Error().Err(err).Msg("limits config reload failed, keeping previous policies")
					continue
				}
				l.logger.Info().Str("path", l.path).Msg("limits config reloaded")
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Str("path", l.path).Msg("limits config watcher error")
		case <-done:
			return
		}
	}
}

func (l *Loader) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read limits config %s: %w", l.path, err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse limits config %s: %w", l.path, err)
	}

	scopes := make(map[string]ScopePolicy, len(file.Scopes))
	for name, sc := range file.Scopes {
		window, err := time.ParseDuration(sc.Window)
		if err != nil {
			return fmt.Errorf("limits config scope %q: invalid window %q: %w", name, sc.Window, err)
		}
		if sc.Limit < 0 {
			return fmt.Errorf("limits config scope %q: negative limit %d", name, sc.Limit)
		}
		scopes[name] = ScopePolicy{Limit: sc.Limit, Window: window}
	}

	l.policies.Replace(scopes)
	return nil
}
