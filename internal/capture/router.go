package capture

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bryanchriswhite/camdump/internal/logger"
)

// AutoBackend selects the highest priority available backend. Backends
// registered with a negative priority are only selected by name.
const AutoBackend = "auto"

// Factory constructs a backend instance
type Factory func() Backend

type registration struct {
	name     string
	priority int
	factory  Factory
}

// Router keeps the set of compiled-in backends and picks one by name
type Router struct {
	mu       sync.RWMutex
	backends map[string]registration
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{backends: make(map[string]registration)}
}

var defaultRouter = NewRouter()

// Register adds a backend to the default router. Backends call it from init.
func Register(name string, priority int, f Factory) {
	defaultRouter.Register(name, priority, f)
}

// Select picks a backend from the default router.
func Select(name string) (Backend, error) {
	return defaultRouter.Select(name)
}

// All constructs every backend registered with the default router.
func All() []Backend {
	return defaultRouter.All()
}

// Names lists the backends registered with the default router.
func Names() []string {
	return defaultRouter.Names()
}

// Register adds a backend. Higher priority wins under AutoBackend.
func (r *Router) Register(name string, priority int, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	if _, dup := r.backends[name]; dup {
		panic(fmt.Sprintf("capture: backend %q registered twice", name))
	}
	r.backends[name] = registration{name: name, priority: priority, factory: f}
}

// Names returns registered backend names, highest priority first
func (r *Router) Names() []string {
	regs := r.sorted()
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.name)
	}
	return names
}

// All constructs one instance of every registered backend, highest priority
// first
func (r *Router) All() []Backend {
	regs := r.sorted()
	backends := make([]Backend, 0, len(regs))
	for _, reg := range regs {
		backends = append(backends, reg.factory())
	}
	return backends
}

// Select returns the named backend, or the best available one for AutoBackend
func (r *Router) Select(name string) (Backend, error) {
	log := logger.WithComponent("capture-router")

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == AutoBackend {
		for _, reg := range r.sorted() {
			if reg.priority < 0 {
				continue
			}
			b := reg.factory()
			if b.Available() {
				log.Debug().Str("backend", reg.name).Msg("Selected capture backend")
				return b, nil
			}
			log.Debug().Str("backend", reg.name).Msg("Capture backend not available")
		}
		return nil, ErrNoBackend
	}

	r.mu.RLock()
	reg, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (have %s)", ErrUnknownBackend, name, strings.Join(r.Names(), ", "))
	}

	b := reg.factory()
	if !b.Available() {
		log.Warn().Str("backend", name).Msg("Capture backend reports unavailable, opening will likely fail")
	}
	return b, nil
}

func (r *Router) sorted() []registration {
	r.mu.RLock()
	regs := make([]registration, 0, len(r.backends))
	for _, reg := range r.backends {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].name < regs[j].name
	})
	return regs
}
