// Package generators is the registered suite of named generators spec 6
// calls for ("generator name (required; one of the registered suite
// names)"). Each entry assembles sequences into a main funnel; cmd/tibbar
// looks generators up by name and hands the result straight to
// engine.Config.NewMainFunnel.
package generators

import (
	"fmt"
	"sort"

	"github.com/jberkowitz/tibbar/internal/funnel"
	"github.com/jberkowitz/tibbar/internal/resource"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

// Factory builds a fresh main-funnel Sequence for one run, given the run's
// Reserver.
type Factory func(reserver *resource.Space) sequence.Sequence

var registry = map[string]Factory{
	"simple": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewSimpleFunnel(reserver,
			sequence.NewRandomSafeInstrs(60),
		)
	},
	"ldst": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewSimpleFunnel(reserver,
			sequence.NewLoad(), sequence.NewStore(),
			sequence.NewLoad(), sequence.NewStore(),
			sequence.NewLoad(), sequence.NewStore(),
		)
	},
	"ldst_exception": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewSimpleFunnel(reserver,
			sequence.NewRandomSafeInstrs(5),
			sequence.NewLoadException(),
			sequence.NewRandomSafeInstrs(5),
		)
	},
	"hazard": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewSimpleFunnel(reserver,
			sequence.NewHazards(), sequence.NewHazards(),
			sequence.NewHazards(), sequence.NewHazards(),
		)
	},
	"stress_float": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewSimpleFunnel(reserver,
			sequence.NewStressFloatSingleSource(),
			sequence.NewStressFloatMultiSource(),
			sequence.NewFDivFSqrtSweep(),
		)
	},
	"mixed": func(reserver *resource.Space) sequence.Sequence {
		return funnel.NewRoundRobinFunnel(reserver,
			sequence.NewRandomSafeInstrs(30),
			sequence.NewLoad(),
			sequence.NewStore(),
			sequence.NewHazards(),
			sequence.NewRelativeBranching(),
			sequence.NewAbsoluteBranching(),
		)
	},
}

// Get looks up a registered generator factory by name.
func Get(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("generators: unknown generator %q (available: %v)", name, Names())
	}
	return f, nil
}

// Names lists every registered generator name, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
