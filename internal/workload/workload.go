// Package workload drives a Manager through a synthetic program: nested
// calls and blocks that allocate objects, abandon some of their children,
// and occasionally return closures that are entered again later.
package workload

import (
	"errors"
	"fmt"

	"tricolor/internal/config"
	"tricolor/pkg/heap"
	"tricolor/pkg/scope"
	"tricolor/pkg/value"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Result summarises a run.
type Result struct {
	Rounds      int
	Allocations int // pointer allocations, objects and strings
	Closures    int // closures still persisted at the end
	Collections int
	Freed       int
	Peak        int
	Live        int // heap records left after the final collection
}

type Runner struct {
	Config  config.Config
	manager *scope.Manager
	recent  []uuid.UUID // capture identities of returned closures
}

// NewRunner creates a Runner with a fresh heap and Manager.
func NewRunner(cfg config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		Config:  cfg,
		manager: scope.NewManager(heap.New(), cfg.Collector.Options()...),
	}, nil
}

// Heap returns the heap the run allocates into.
func (r *Runner) Heap() *heap.Heap {
	return r.manager.Heap()
}

// Run executes the configured rounds, then retires the global frame so a
// final collection leaves only what the program still binds.
func (r *Runner) Run() (Result, error) {
	w := r.Config.Workload
	res := Result{Rounds: w.Rounds}
	log.Info("Running workload", "rounds", w.Rounds, "threshold", r.manager.Threshold())

	for round := 0; round < w.Rounds; round++ {
		n, err := r.round(round)
		if err != nil {
			return res, fmt.Errorf("round %d: %w", round, err)
		}
		res.Allocations += n
	}

	if err := r.manager.PopScope(uuid.Nil, true); !errors.Is(err, scope.ErrScopeUnderflow) {
		return res, fmt.Errorf("retiring global scope: unexpected %v", err)
	}

	stats := r.Heap().Stats()
	res.Closures = r.manager.ClosureCount()
	res.Collections = stats.Collections
	res.Freed = stats.Freed
	res.Peak = stats.Peak
	res.Live = r.manager.HeapLen()
	return res, nil
}

// round runs one call and returns the number of pointer allocations it made.
func (r *Runner) round(round int) (int, error) {
	w := r.Config.Workload
	m := r.manager

	if len(r.recent) > 0 {
		capture := r.recent[round%len(r.recent)]
		if err := m.PushClosureScope(capture); err != nil {
			return 0, err
		}
		if err := m.PopScope(uuid.Nil, true); err != nil {
			return 0, err
		}
	}

	m.PushScope(true)
	for d := 0; d < w.Depth; d++ {
		m.PushScope(false)
	}

	allocs := 0
	for i := 0; i < w.ObjectsPerFrame; i++ {
		drop := w.DropEvery > 0 && i%w.DropEvery == 0
		if err := r.allocObject(drop); err != nil {
			return allocs, err
		}
		allocs += 2
	}

	for d := 0; d < w.Depth; d++ {
		if err := m.PopScope(uuid.Nil, true); err != nil {
			return allocs, err
		}
	}

	capture := uuid.Nil
	if w.ClosureEvery > 0 && round%w.ClosureEvery == 0 {
		fn := value.NewClosure(fmt.Sprintf("fn%d", round))
		if _, err := m.Alloc(fn, &value.Function{Name: fn.Name, Capture: fn.Capture}); err != nil {
			return allocs, err
		}
		allocs++
		capture = fn.Capture
		r.recent = append(r.recent, capture)
	}

	return allocs, m.PopScope(capture, true)
}

// allocObject binds a string and an object referencing it. When drop is set
// both the object's reference and the string's own binding are overwritten,
// leaving the string unreachable.
func (r *Runner) allocObject(drop bool) error {
	m := r.manager

	s := value.NewPointer("s")
	if _, err := m.Alloc(s, &value.String{Text: s.ID.String()}); err != nil {
		return err
	}
	o := value.NewPointer("o")
	obj := value.NewObject(map[string]value.Value{"child": s, "n": value.NewNumber("n", 1)})
	if _, err := m.Alloc(o, obj); err != nil {
		return err
	}
	if !drop {
		return nil
	}

	v, p, err := m.Load(o.ID)
	if err != nil {
		return err
	}
	p.(*value.Object).Set("child", value.NewUndefined("child"))
	if err := m.Store(v, p); err != nil {
		return err
	}

	gone := value.NewUndefined(s.Name)
	gone.ID = s.ID
	return m.Store(gone, nil)
}
