// Command loadgen generates synthetic submission and remittance documents
// into a directory, typically an ingestion inbox. It exists for load testing
// the pipeline and for seeding development databases with plausible volumes.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: create output dir: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	written, claims, errs := run(cfg)
	elapsed := time.Since(start)

	fmt.Printf("loadgen: wrote %d documents (%d claims) to %s in %s, seed=%d\n",
		written, claims, cfg.OutDir, elapsed.Round(time.Millisecond), cfg.Seed)
	if errs > 0 {
		fmt.Fprintf(os.Stderr, "loadgen: %d documents failed to write\n", errs)
		os.Exit(1)
	}
}

// run fans file generation out over cfg.Concurrency workers. Each submission
// and its optional remittance are generated by a single-threaded generator
// first so output is reproducible for a given seed, then written
// concurrently.
func run(cfg *Config) (written, claims, errs int64) {
	gen := newGenerator(cfg)
	now := time.Now().UTC().Truncate(time.Minute)

	type job struct {
		name string
		body []byte
	}

	var jobs []job
	for i := 0; i < cfg.Files; i++ {
		txAt := now.Add(-time.Duration(cfg.Files-i) * time.Hour)
		sub := gen.submission(i, txAt)
		body, err := marshalDocument(sub)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loadgen: marshal submission %d: %v\n", i, err)
			errs++
			continue
		}
		jobs = append(jobs, job{name: fmt.Sprintf("%s_sub_%04d.xml", cfg.Facility, i), body: body})
		claims += int64(len(sub.Claims))

		if gen.rng.Float64() < cfg.RemittanceRate {
			rem := gen.remittance(i, sub, txAt.Add(48*time.Hour))
			body, err := marshalDocument(rem)
			if err != nil {
				fmt.Fprintf(os.Stderr, "loadgen: marshal remittance %d: %v\n", i, err)
				errs++
				continue
			}
			jobs = append(jobs, job{name: fmt.Sprintf("%s_rem_%04d.xml", cfg.Payer, i), body: body})
		}
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	var okCount, errCount int64

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				path := filepath.Join(cfg.OutDir, j.name)
				if err := os.WriteFile(path, j.body, 0o640); err != nil {
					fmt.Fprintf(os.Stderr, "loadgen: write %s: %v\n", j.name, err)
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&okCount, 1)
			}
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	return okCount, claims, errs + errCount
}
