package evo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorParams carries the tunables any registered operator may read.
type OperatorParams struct {
	MutationRate        float64
	TournamentSize      int
	RouletteBias        float64
	RouletteProbability float64
	SpliceRows          int
	BlockSize           int
	Density             float64
	RegionSize          int
}

type (
	SeederFactory    func(OperatorParams) Seeder
	SelectorFactory  func(OperatorParams) Selector
	CrossoverFactory func(OperatorParams) Crossover
	MutatorFactory   func(OperatorParams) Mutator
)

// operatorTable maps operator names to factories. Tables are built once
// and never written afterwards.
type operatorTable[F any] struct {
	kind string
	m    map[string]F
}

func newOperatorTable[F any](kind string, builtins map[string]F) *operatorTable[F] {
	return &operatorTable[F]{kind: kind, m: builtins}
}

func (t *operatorTable[F]) resolve(name string) (F, error) {
	factory, ok := t.m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %q (available: %s)", ErrOperatorNotFound, t.kind, name, strings.Join(t.names(), ", "))
	}
	return factory, nil
}

func (t *operatorTable[F]) names() []string {
	names := make([]string, 0, len(t.m))
	for name := range t.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	seeders = newOperatorTable("seeder", map[string]SeederFactory{
		"dense": func(p OperatorParams) Seeder {
			return DenseSeeder{Density: p.Density}
		},
		"localized": func(p OperatorParams) Seeder {
			return LocalizedSeeder{RegionSize: p.RegionSize}
		},
	})
	selectors = newOperatorTable("selector", map[string]SelectorFactory{
		"tournament": func(p OperatorParams) Selector {
			return TournamentSelector{Size: p.TournamentSize}
		},
		"roulette": func(p OperatorParams) Selector {
			return RouletteSelector{Bias: p.RouletteBias}
		},
		"mixed": func(p OperatorParams) Selector {
			return MixedSelector{
				RouletteProbability: p.RouletteProbability,
				Roulette:            RouletteSelector{Bias: p.RouletteBias},
				Tournament:          TournamentSelector{Size: p.TournamentSize},
			}
		},
	})
	crossovers = newOperatorTable("crossover", map[string]CrossoverFactory{
		"row": func(OperatorParams) Crossover {
			return RowSpliceCrossover{}
		},
		"localized": func(p OperatorParams) Crossover {
			return LocalizedSpliceCrossover{MaxRows: p.SpliceRows}
		},
		"block": func(p OperatorParams) Crossover {
			return BlockCrossover{BlockSize: p.BlockSize}
		},
	})
	mutators = newOperatorTable("mutator", map[string]MutatorFactory{
		"live_flip": func(p OperatorParams) Mutator {
			return LiveFlipMutator{Rate: p.MutationRate}
		},
		"per_cell": func(p OperatorParams) Mutator {
			return PerCellMutator{Rate: p.MutationRate}
		},
	})
)

func ResolveSeeder(name string, params OperatorParams) (Seeder, error) {
	factory, err := seeders.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(params), nil
}

func ResolveSelector(name string, params OperatorParams) (Selector, error) {
	factory, err := selectors.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(params), nil
}

func ResolveCrossover(name string, params OperatorParams) (Crossover, error) {
	factory, err := crossovers.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(params), nil
}

func ResolveMutator(name string, params OperatorParams) (Mutator, error) {
	factory, err := mutators.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(params), nil
}

// ListSeeders and the other List functions return operator names sorted.
func ListSeeders() []string    { return seeders.names() }
func ListSelectors() []string  { return selectors.names() }
func ListCrossovers() []string { return crossovers.names() }
func ListMutators() []string   { return mutators.names() }
