package bench

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Func is one timed invocation.
type Func func() error

type Result struct {
	Name    string
	Runs    int
	Samples []time.Duration
	Mean    time.Duration
	Std     time.Duration
	Min     time.Duration
	Max     time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%s: avg=%.3fs, std=%.3fs over %d runs", r.Name, r.Mean.Seconds(), r.Std.Seconds(), r.Runs)
}

// Repeat calls fn runs times in sequence and summarises the wall times.
// The first error aborts the measurement.
func Repeat(ctx context.Context, name string, runs int, fn Func) (Result, error) {
	if runs <= 0 {
		return Result{}, fmt.Errorf("bench %s: runs must be positive, got %d", name, runs)
	}
	samples := make([]time.Duration, 0, runs)
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		if err := fn(); err != nil {
			return Result{}, fmt.Errorf("bench %s run %d: %w", name, i, err)
		}
		samples = append(samples, time.Since(start))
	}
	return Summarize(name, samples), nil
}

// Summarize computes mean and population standard deviation of samples.
func Summarize(name string, samples []time.Duration) Result {
	r := Result{Name: name, Runs: len(samples), Samples: samples}
	if len(samples) == 0 {
		return r
	}
	secs := make([]float64, len(samples))
	r.Min, r.Max = samples[0], samples[0]
	for i, s := range samples {
		secs[i] = s.Seconds()
		if s < r.Min {
			r.Min = s
		}
		if s > r.Max {
			r.Max = s
		}
	}
	mean, std := stat.PopMeanStdDev(secs, nil)
	r.Mean = seconds(mean)
	r.Std = seconds(std)
	return r
}

type Case struct {
	Name string
	Fn   Func
}

// Compare measures each case in order.
func Compare(ctx context.Context, runs int, cases ...Case) ([]Result, error) {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		r, err := Repeat(ctx, c.Name, runs, c.Fn)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func WriteTable(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "strategy\truns\tavg\tstd\tmin\tmax")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%.3fs\t%.3fs\t%.3fs\t%.3fs\n",
			r.Name, r.Runs, r.Mean.Seconds(), r.Std.Seconds(), r.Min.Seconds(), r.Max.Seconds())
	}
	return tw.Flush()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
