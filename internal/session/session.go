// Package session holds the state of one viewing session: the scene, the
// registry of loaded subsystems and the iso value shared by all of them.
//
// Every operation runs to completion on the caller's goroutine. A Session is
// not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"ppview/internal/models"
	"ppview/pkg/interpolation"
	"ppview/pkg/qepp"
	"ppview/pkg/scene"
	"ppview/pkg/visualization"
)

const (
	// DefaultIsoValue is the contour level before any slider change
	DefaultIsoValue = 1e-2

	// SliderMin and SliderMax bound the iso slider exponent
	SliderMin = -5
	SliderMax = -1
)

var (
	// ErrSliderRange is returned for slider positions outside [SliderMin, SliderMax]
	ErrSliderRange = errors.New("slider position out of range")

	// ErrNotLoaded is returned when a path has no registered subsystem
	ErrNotLoaded = errors.New("subsystem not loaded")
)

// IsoFromSlider maps slider position n to the iso value 10^n
func IsoFromSlider(n int) float64 {
	return math.Pow(10, float64(n))
}

// Loader parses one file into a system
type Loader func(path string) (*models.System, error)

// Option configures a Session
type Option func(*Session)

// WithLoader replaces the .pp reader
func WithLoader(l Loader) Option {
	return func(s *Session) { s.loader = l }
}

// WithPresenter sets the presenter called on every redraw
func WithPresenter(p visualization.Presenter) Option {
	return func(s *Session) { s.presenter = p }
}

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithIsoValue sets the starting iso value
func WithIsoValue(v float64) Option {
	return func(s *Session) { s.isoValue = v }
}

// WithStopOnError makes LoadDirectory abort at the first file that fails
func WithStopOnError(stop bool) Option {
	return func(s *Session) { s.stopOnError = stop }
}

// WithRefine resamples every loaded field factor times finer by kriging
// before the surface is extracted. Factors below 2 leave fields as read.
func WithRefine(factor int) Option {
	return func(s *Session) { s.refine = factor }
}

// Session owns a scene and the subsystems drawn into it
type Session struct {
	scene *scene.Scene

	// order keeps registration order; subsystems is keyed on path
	order      []string
	subsystems map[string]*visualization.Subsystem

	isoValue    float64
	loader      Loader
	presenter   visualization.Presenter
	logger      zerolog.Logger
	stopOnError bool
	refine      int
	redraws     int
}

// New creates an empty session
func New(opts ...Option) *Session {
	s := &Session{
		scene:      scene.New(),
		subsystems: make(map[string]*visualization.Subsystem),
		isoValue:   DefaultIsoValue,
		loader:     qepp.Read,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads path and adds its surface and atoms to the scene. Paths without
// the .pp extension and paths already loaded are ignored and report false.
// When the file cannot be read or its grid is unusable the session is left
// exactly as it was.
func (s *Session) Load(path string) (bool, error) {
	if filepath.Ext(path) != qepp.Extension {
		s.logger.Debug().Str("path", path).Msg("skipping file without .pp extension")
		return false, nil
	}
	path = filepath.Clean(path)
	if _, ok := s.subsystems[path]; ok {
		return false, nil
	}

	sys, err := s.loader(path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to read file")
		return false, err
	}
	if sys.Field == nil {
		return false, fmt.Errorf("%s: no field: %w", path, models.ErrGridShapeMismatch)
	}
	if err := sys.Field.Validate(); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("unusable field grid")
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if !sys.Field.IsOrthogonal() {
		s.logger.Warn().Str("path", path).Msg("non-orthogonal lattice, surface placed on the cell diagonal only")
	}

	field := sys.Field
	if s.refine > 1 {
		field, err = interpolation.Refine(sys.Field, s.refine, interpolation.DefaultParams())
		if err != nil {
			return false, fmt.Errorf("%s: %w", path, err)
		}
		s.logger.Debug().Str("path", path).Int("factor", s.refine).Ints("shape", field.Shape[:]).Msg("refined field")
	}

	var added []*scene.Actor
	if len(s.order) == 0 {
		added = append(added, visualization.AddCell(field, s.scene))
	}

	atoms := make([]*scene.Actor, 0, len(sys.Atoms))
	for _, a := range sys.Atoms {
		atoms = append(atoms, visualization.AddAtom(a.Label, a.Position, s.scene))
	}
	added = append(added, atoms...)

	sub, err := visualization.AddField(field, s.scene, s.isoValue, len(s.order), path)
	if err != nil {
		s.unwind(added)
		return false, fmt.Errorf("%s: %w", path, err)
	}
	sub.Atoms = atoms

	s.order = append(s.order, path)
	s.subsystems[path] = sub

	s.logger.Info().
		Str("path", path).
		Int("index", sub.ColorIndex).
		Int("atoms", len(atoms)).
		Ints("shape", field.Shape[:]).
		Msg("loaded subsystem")

	s.redraw()
	return true, nil
}

// unwind removes actors added by a load that did not complete
func (s *Session) unwind(added []*scene.Actor) {
	for _, a := range added {
		s.scene.RemoveActor(a)
	}
}

// LoadDirectory loads every .pp file directly inside dir in name order and
// returns how many were added. Subdirectories are not entered. A file that
// fails is logged and skipped unless the session stops on error; all
// failures are returned joined.
func (s *Session) LoadDirectory(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var errs []error
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := s.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			if s.stopOnError {
				return loaded, err
			}
			errs = append(errs, err)
			continue
		}
		if ok {
			loaded++
		}
	}

	s.logger.Info().Str("dir", dir).Int("loaded", loaded).Int("failed", len(errs)).Msg("loaded directory")
	return loaded, errors.Join(errs...)
}

// Drop loads each path the way a drag-and-drop onto the viewer does:
// directories through LoadDirectory, everything else through Load
func (s *Session) Drop(paths ...string) (int, error) {
	var errs []error
	loaded := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			n, err := s.LoadDirectory(p)
			loaded += n
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		ok, err := s.Load(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			loaded++
		}
	}
	return loaded, errors.Join(errs...)
}

// SetIsoValue applies v to every loaded surface and to later loads
func (s *Session) SetIsoValue(v float64) {
	s.isoValue = v
	for _, path := range s.order {
		s.subsystems[path].Contour.SetValue(v)
	}
	s.logger.Debug().Float64("iso", v).Msg("iso value changed")
	s.redraw()
}

// SetIsoExponent sets the iso value from a slider position
func (s *Session) SetIsoExponent(n int) error {
	if n < SliderMin || n > SliderMax {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrSliderRange, n, SliderMin, SliderMax)
	}
	s.SetIsoValue(IsoFromSlider(n))
	return nil
}

// SetVisible shows or hides the surface loaded from path. Its atoms stay.
func (s *Session) SetVisible(path string, visible bool) error {
	sub, ok := s.subsystems[filepath.Clean(path)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, path)
	}
	if visible {
		s.scene.AddActor(sub.Actor)
	} else {
		s.scene.RemoveActor(sub.Actor)
	}
	s.redraw()
	return nil
}

// Visible reports whether the surface loaded from path is in the scene
func (s *Session) Visible(path string) (bool, error) {
	sub, ok := s.subsystems[filepath.Clean(path)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotLoaded, path)
	}
	return s.scene.HasActor(sub.Actor), nil
}

// Clear removes every actor and subsystem. The next load adds a fresh cell.
func (s *Session) Clear() {
	s.scene.RemoveAll()
	s.order = nil
	s.subsystems = make(map[string]*visualization.Subsystem)
	s.logger.Info().Msg("cleared scene")
	s.redraw()
}

// Redraw hands the scene to the presenter, if any
func (s *Session) Redraw() error {
	s.redraws++
	if s.presenter == nil {
		return nil
	}
	return s.presenter.Render(s.scene)
}

func (s *Session) redraw() {
	if err := s.Redraw(); err != nil {
		s.logger.Error().Err(err).Msg("redraw failed")
	}
}

// SetPresenter replaces the presenter; nil disables presentation
func (s *Session) SetPresenter(p visualization.Presenter) {
	s.presenter = p
}

// Redraws counts redraw requests, presented or not
func (s *Session) Redraws() int {
	return s.redraws
}

// Subsystems returns the loaded subsystems in load order
func (s *Session) Subsystems() []*visualization.Subsystem {
	out := make([]*visualization.Subsystem, len(s.order))
	for i, path := range s.order {
		out[i] = s.subsystems[path]
	}
	return out
}

// Lookup returns the subsystem loaded from path
func (s *Session) Lookup(path string) (*visualization.Subsystem, bool) {
	sub, ok := s.subsystems[filepath.Clean(path)]
	return sub, ok
}

// Len is the number of loaded subsystems
func (s *Session) Len() int {
	return len(s.order)
}

// IsoValue returns the current contour level
func (s *Session) IsoValue() float64 {
	return s.isoValue
}

// Scene returns the scene the session draws into
func (s *Session) Scene() *scene.Scene {
	return s.scene
}
