package experiment

import "fmt"

// Factor is an experiment variable and its levels.
type Factor struct {
	Name   string
	Levels []string
}

// Level is the value a factor takes in one run.
type Level struct {
	Factor string
	Value  string
}

// Run is one row of the run table.
type Run struct {
	Index      int
	Repetition int
	Levels     []Level
}

// Name is the run's directory name.
func (r Run) Name() string {
	return fmt.Sprintf("run_%d_repetition_%d", r.Index, r.Repetition)
}

// Table returns the cartesian product of the factor levels, each
// combination repeated repetitions times. The first factor varies slowest.
// Without factors the table has one run per repetition.
func Table(factors []Factor, repetitions int) []Run {
	if repetitions < 1 {
		repetitions = 1
	}
	combos := [][]Level{nil}
	for _, f := range factors {
		next := make([][]Level, 0, len(combos)*len(f.Levels))
		for _, c := range combos {
			for _, v := range f.Levels {
				row := make([]Level, len(c), len(c)+1)
				copy(row, c)
				next = append(next, append(row, Level{Factor: f.Name, Value: v}))
			}
		}
		combos = next
	}

	runs := make([]Run, 0, len(combos)*repetitions)
	for i, c := range combos {
		for rep := 0; rep < repetitions; rep++ {
			runs = append(runs, Run{Index: i, Repetition: rep, Levels: c})
		}
	}
	return runs
}
