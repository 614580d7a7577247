package optimizer

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/bobboyms/reldb/pkg/metrics"
	"github.com/bobboyms/reldb/pkg/tree"
)

// Options configures the genetic search, defaulting to a standard GA figure set.
type Options struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	Elitism        int
	Rand           *rand.Rand
}

// WithDefaults fills any zero-valued field with the package defaults,
// leaving explicit caller values untouched.
func (o Options) WithDefaults() Options {
	if o.PopulationSize == 0 {
		o.PopulationSize = 50
	}
	if o.Generations == 0 {
		o.Generations = 100
	}
	if o.MutationRate == 0 {
		o.MutationRate = 0.1
	}
	if o.CrossoverRate == 0 {
		o.CrossoverRate = 0.8
	}
	if o.Elitism == 0 {
		o.Elitism = 2
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(1))
	}
	return o
}

// Individual is one candidate in the population: a chromosome and the
// fitness (estimated cost, lower is better) it scored on base.
type Individual struct {
	Params  OperationParams
	Fitness float64
}

const tournamentSize = 3

// Search runs the genetic loop over base's candidate parameter space and
// returns the best individual found across every generation.
func Search(base *tree.Node, candidates CandidateSet, stats StatsProvider, opts Options) Individual {
	opts = opts.WithDefaults()
	rng := opts.Rand

	population := make([]Individual, opts.PopulationSize)
	for i := range population {
		population[i] = Individual{Params: randomIndividual(base, candidates, stats, rng)}
	}
	evaluate(population, base, stats)
	sortByFitness(population)
	best := population[0]
	metrics.OptimizerBestFitness.WithLabelValues(strconv.Itoa(0)).Set(best.Fitness)

	for gen := 0; gen < opts.Generations; gen++ {
		next := make([]Individual, 0, len(population))
		for i := 0; i < opts.Elitism && i < len(population); i++ {
			next = append(next, Individual{Params: population[i].Params.Clone()})
		}
		for len(next) < len(population) {
			parentA := tournamentSelect(population, rng)
			parentB := tournamentSelect(population, rng)
			var childParams OperationParams
			if rng.Float64() < opts.CrossoverRate {
				childParams = crossover(parentA.Params, parentB.Params, rng)
			} else {
				childParams = parentA.Params.Clone()
			}
			childParams = mutate(childParams, base, candidates, stats, opts.MutationRate, rng)
			next = append(next, Individual{Params: childParams})
		}
		population = next
		evaluate(population, base, stats)
		sortByFitness(population)
		if population[0].Fitness < best.Fitness {
			best = population[0]
		}
		metrics.OptimizerBestFitness.WithLabelValues(strconv.Itoa(gen + 1)).Set(population[0].Fitness)
	}
	return best
}

func evaluate(pop []Individual, base *tree.Node, stats StatsProvider) {
	for i := range pop {
		plan := Apply(base, pop[i].Params)
		pop[i].Fitness = Estimate(plan, stats)
	}
}

func sortByFitness(pop []Individual) {
	sort.Slice(pop, func(i, j int) bool { return pop[i].Fitness < pop[j].Fitness })
}

func tournamentSelect(pop []Individual, rng *rand.Rand) Individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < tournamentSize; i++ {
		c := pop[rng.Intn(len(pop))]
		if c.Fitness < best.Fitness {
			best = c
		}
	}
	return best
}

// randomIndividual generates one value per candidate node per kind,
// retrying Generate until Validate accepts it (each kind's own space is
// small enough that this converges immediately in practice).
func randomIndividual(base *tree.Node, candidates CandidateSet, stats StatsProvider, rng *rand.Rand) OperationParams {
	params := make(OperationParams, len(registry))
	for _, kind := range registry {
		byNode := make(map[int64]interface{})
		for _, id := range candidates[kind.Tag()] {
			for attempt := 0; attempt < 10; attempt++ {
				v := kind.Generate(id, base, stats, rng)
				if kind.Validate(id, v, base, stats) {
					byNode[id] = v
					break
				}
			}
		}
		params[kind.Tag()] = byNode
	}
	return params
}

// crossover builds a child chromosome from two parents. filter_params and
// join_params inherit jointly per parent (picking one parent's whole set for
// that node) since selection-into-join folding depends on which conjuncts
// still live in a FILTER rather than the join condition; the other three
// kinds inherit independently, a per-node uniform coin flip.
func crossover(a, b OperationParams, rng *rand.Rand) OperationParams {
	out := make(OperationParams, len(registry))
	jointParent := rng.Float64() < 0.5
	for _, kind := range registry {
		tag := kind.Tag()
		src := a
		switch tag {
		case FilterParams, JoinParams:
			if !jointParent {
				src = b
			}
			out[tag] = copyMap(kind, src[tag])
		default:
			merged := make(map[int64]interface{}, len(a[tag]))
			for id := range a[tag] {
				if rng.Float64() < 0.5 {
					merged[id] = kind.Copy(a[tag][id])
				} else if v, ok := b[tag][id]; ok {
					merged[id] = kind.Copy(v)
				} else {
					merged[id] = kind.Copy(a[tag][id])
				}
			}
			out[tag] = merged
		}
	}
	return out
}

func copyMap(kind paramKind, byNode map[int64]interface{}) map[int64]interface{} {
	out := make(map[int64]interface{}, len(byNode))
	for id, v := range byNode {
		out[id] = kind.Copy(v)
	}
	return out
}

// mutate flips each node's parameter with probability rate, using the
// kind's own Mutate and retrying Generate-from-scratch if the mutated value
// fails Validate (a reassociation choice, say, that a fresh sibling mutation
// made stale).
func mutate(params OperationParams, base *tree.Node, candidates CandidateSet, stats StatsProvider, rate float64, rng *rand.Rand) OperationParams {
	for _, kind := range registry {
		tag := kind.Tag()
		byNode := params[tag]
		for _, id := range candidates[tag] {
			v, present := byNode[id]
			if !present {
				continue
			}
			if rng.Float64() >= rate {
				continue
			}
			mutated := kind.Mutate(id, v, base, stats, rng)
			if kind.Validate(id, mutated, base, stats) {
				byNode[id] = mutated
				continue
			}
			for attempt := 0; attempt < 10; attempt++ {
				fresh := kind.Generate(id, base, stats, rng)
				if kind.Validate(id, fresh, base, stats) {
					byNode[id] = fresh
					break
				}
			}
		}
	}
	return params
}
