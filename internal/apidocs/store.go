package apidocs

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// EmbeddedSource is the Document.Source of the built-in document.
const EmbeddedSource = "embedded"

// defaultDebounce coalesces the burst of events editors emit for one save.
const defaultDebounce = 100 * time.Millisecond

// Options configures a Store.
type Options struct {
	// Path is an OpenAPI YAML file on disk. Empty serves Default only.
	Path string
	// Default is the document used when Path is empty.
	Default []byte

	Logger log.Logger

	// OnReload is called after every reload attempt triggered by Watch.
	OnReload func(ok bool)

	// Debounce defaults to 100ms.
	Debounce time.Duration
}

// Store holds the current Document. Reads are lock-free.
type Store struct {
	path     string
	logger   log.Logger
	onReload func(ok bool)
	debounce time.Duration

	current atomic.Pointer[Document]
}

// NewStore loads the initial document. A Path that cannot be read or
// parsed is a startup error; there is no silent fallback to Default.
func NewStore(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	s := &Store{
		logger:   opts.Logger,
		onReload: opts.OnReload,
		debounce: opts.Debounce,
	}

	if opts.Path == "" {
		if len(opts.Default) == 0 {
			return nil, xerrors.New("apidocs: no document path and no default document")
		}
		doc, err := Parse(opts.Default, EmbeddedSource)
		if err != nil {
			return nil, err
		}
		s.current.Store(doc)
		return s, nil
	}

	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "apidocs: resolve %s", opts.Path)
	}
	s.path = filepath.Clean(abs)

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(doc)
	return s, nil
}

// Current returns the active document. Never nil for a Store built by NewStore.
func (s *Store) Current() *Document { return s.current.Load() }

// Path is the watched file, empty for an embedded-only store.
func (s *Store) Path() string { return s.path }

// Reload re-reads Path and swaps the document in on success. On failure
// the previous document stays active.
func (s *Store) Reload(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	doc, err := s.load()
	if err != nil {
		s.logger.Error(ctx, err, "api docs reload failed, keeping previous document",
			"path", s.path,
		)
		s.report(false)
		return err
	}

	prev := s.current.Swap(doc)
	s.logger.Info(ctx, "api docs reloaded",
		"path", s.path,
		"title", doc.Title,
		"version", doc.Version,
		"previous_version", prev.Version,
	)
	s.report(true)
	return nil
}

func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "apidocs: read %s", s.path)
	}
	return Parse(data, s.path)
}

func (s *Store) report(ok bool) {
	if s.onReload != nil {
		s.onReload(ok)
	}
}
