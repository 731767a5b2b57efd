// Package settings persists the shell's recent sources, per-resource
// window settings, and trusted certificates in a single JSON file.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// FileName is the settings file name inside the state directory.
const FileName = "config.json"

// File is the on-disk layout.
type File struct {
	Sources      []string                       `json:"sources"`
	Windows      map[string]schema.WindowRecord `json:"windows"`
	Certificates map[string]string              `json:"certificates"`
}

// Options configures a Store.
type Options struct {
	Dir            string
	DefaultCommand string
	WindowWidth    int
	WindowHeight   int
	Logger         pslog.Logger
}

// Store keeps settings in memory and writes them to disk in the
// background after every mutation. Concurrent mutations coalesce into one
// write of the latest state.
type Store struct {
	path           string
	defaultCommand string
	width          int
	height         int
	log            pslog.Logger

	mu   sync.Mutex
	data File

	writeMu   sync.Mutex
	dirty     chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Open loads the settings file from opts.Dir, falling back to empty
// settings when it is missing or unreadable, and starts the writer.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &Store{
		path:           filepath.Join(opts.Dir, FileName),
		defaultCommand: strings.TrimSpace(opts.DefaultCommand),
		width:          opts.WindowWidth,
		height:         opts.WindowHeight,
		log:            logger.With("settings", filepath.Join(opts.Dir, FileName)),
		dirty:          make(chan struct{}, 1),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	if s.defaultCommand == "" {
		s.defaultCommand = schema.DefaultLaunchCommand
	}
	if s.width <= 0 {
		s.width = schema.DefaultWindowWidth
	}
	if s.height <= 0 {
		s.height = schema.DefaultWindowHeight
	}
	s.data = s.load()
	go s.writer()
	return s, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() File {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("settings load miss")
		} else {
			s.log.Warn("settings load failed", "err", err)
		}
		return normalizeFile(File{})
	}
	var file File
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		s.log.Warn("settings parse failed, using defaults", "err", err)
		return normalizeFile(File{})
	}
	file = normalizeFile(file)
	s.log.Debug("settings load ok", "sources", len(file.Sources), "windows", len(file.Windows))
	return file
}

func normalizeFile(file File) File {
	if file.Sources == nil {
		file.Sources = []string{}
	}
	if file.Windows == nil {
		file.Windows = map[string]schema.WindowRecord{}
	}
	if file.Certificates == nil {
		file.Certificates = map[string]string{}
	}
	return file
}

// Sources returns the recent resources, most recent first.
func (s *Store) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.Sources)
}

// UpdateSources moves resource to the front of the recent list.
func (s *Store) UpdateSources(resource schema.Resource) {
	source := string(resource)
	s.mu.Lock()
	sources := slices.DeleteFunc(s.data.Sources, func(existing string) bool { return existing == source })
	s.data.Sources = append([]string{source}, sources...)
	s.mu.Unlock()
	s.markDirty()
}

// Certificate returns the trusted certificate for host.
func (s *Store) Certificate(host string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.data.Certificates[host]
	return cert, ok
}

// UpdateCertificate trusts certificate for host, replacing any earlier one.
func (s *Store) UpdateCertificate(host, certificate string) {
	s.mu.Lock()
	s.data.Certificates[host] = certificate
	s.mu.Unlock()
	s.markDirty()
}

// WindowSettings returns the saved settings for resource with defaults applied.
func (s *Store) WindowSettings(resource schema.Resource) schema.WindowSettings {
	s.mu.Lock()
	record := s.data.Windows[string(resource)]
	s.mu.Unlock()

	out := schema.WindowSettings{
		Bounds: schema.Bounds{
			X:      copyInt(record.X),
			Y:      copyInt(record.Y),
			Width:  s.width,
			Height: s.height,
		},
		Cmd: record.Cmd,
	}
	if record.Width != nil && *record.Width > 0 {
		out.Bounds.Width = *record.Width
	}
	if record.Height != nil && *record.Height > 0 {
		out.Bounds.Height = *record.Height
	}
	if strings.TrimSpace(out.Cmd) == "" {
		out.Cmd = s.defaultCommand
	}
	return out
}

// UpdateWindowSettings merges update into the saved settings for resource.
// A command equal to the default is stored as empty so later default
// changes apply to it.
func (s *Store) UpdateWindowSettings(resource schema.Resource, update schema.WindowSettingsUpdate) {
	s.mu.Lock()
	record := s.data.Windows[string(resource)]
	if update.X != nil {
		record.X = copyInt(update.X)
	}
	if update.Y != nil {
		record.Y = copyInt(update.Y)
	}
	if update.Width != nil {
		record.Width = copyInt(update.Width)
	}
	if update.Height != nil {
		record.Height = copyInt(update.Height)
	}
	if update.Cmd != nil {
		cmd := strings.TrimSpace(*update.Cmd)
		if cmd == s.defaultCommand {
			cmd = ""
		}
		record.Cmd = cmd
	}
	s.data.Windows[string(resource)] = record
	s.mu.Unlock()
	s.markDirty()
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Store) writer() {
	defer close(s.stopped)
	for {
		select {
		case <-s.dirty:
			// Failures are logged by Flush; settings are best-effort.
			_ = s.Flush()
		case <-s.stop:
			return
		}
	}
}

// Flush writes the current settings to disk.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("settings save failed", "err", err)
		return err
	}
	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		s.log.Warn("settings save failed", "err", err)
		return err
	}
	s.log.Trace("settings save ok")
	return nil
}

// Close stops the background writer and writes pending changes.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.stopped
		select {
		case <-s.dirty:
			err = s.Flush()
		default:
		}
	})
	return err
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "config-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
