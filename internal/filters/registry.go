// internal/filters/registry.go
package filters

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"text/template"
)

var (
	// ErrInvalidName is returned when a filter name is not a template identifier.
	ErrInvalidName = errors.New("invalid filter name")

	// ErrNotFunc is returned when a registered value is not a function.
	ErrNotFunc = errors.New("filter is not a function")

	// ErrDuplicate is returned when a name is already registered.
	ErrDuplicate = errors.New("filter already registered")
)

var filterName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Registry is the table of named filters handed to a template engine.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]any
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		funcs:  make(map[string]any),
		logger: logger,
	}
}

// Register adds fn under name. fn must be a function returning one value, or
// a value and an error, as text/template requires.
func (r *Registry) Register(name string, fn any) error {
	if !filterName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := checkFunc(fn); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.funcs[name] = fn
	r.logger.Debug("filter registered", "filter", name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn any) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the filter registered under name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered filter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FuncMap returns a copy of the registry suitable for template.Funcs.
func (r *Registry) FuncMap() template.FuncMap {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fm := make(template.FuncMap, len(r.funcs))
	for name, fn := range r.funcs {
		fm[name] = fn
	}
	return fm
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func checkFunc(fn any) error {
	if fn == nil {
		return ErrNotFunc
	}
	t := reflect.TypeOf(fn)
	if t.Kind() != reflect.Func {
		return fmt.Errorf("%w: got %s", ErrNotFunc, t)
	}
	switch {
	case t.NumOut() == 1:
		return nil
	case t.NumOut() == 2 && t.Out(1) == errorType:
		return nil
	default:
		return fmt.Errorf("%w: must return one value or (value, error)", ErrNotFunc)
	}
}
