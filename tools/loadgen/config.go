package main

import (
	"flag"
	"fmt"
	"time"
)

const (
	defaultFiles          = 10
	defaultClaimsPerFile  = 25
	defaultActivityLines  = 3
	defaultRemittanceRate = 0.8
	defaultConcurrency    = 4
)

type Config struct {
	OutDir         string
	Facility       string
	Payer          string
	Files          int     // number of submission files to generate
	ClaimsPerFile  int     // claims per submission file
	ActivityLines  int     // activity lines per claim
	RemittanceRate float64 // fraction of submission files that get a remittance
	DenialRate     float64 // fraction of remitted activity lines denied
	Seed           int64   // RNG seed, 0 = time-based
	Concurrency    int     // concurrent file writers
}

func parseFlags() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.OutDir, "out", "", "Directory to write generated documents into (required)")
	flag.StringVar(&cfg.Facility, "facility", "FAC-001", "Facility (sender) code for submissions")
	flag.StringVar(&cfg.Payer, "payer", "PAY-01", "Payer (receiver) code")
	flag.IntVar(&cfg.Files, "files", defaultFiles, "Number of submission files to generate")
	flag.IntVar(&cfg.ClaimsPerFile, "claims", defaultClaimsPerFile, "Claims per submission file")
	flag.IntVar(&cfg.ActivityLines, "activities", defaultActivityLines, "Activity lines per claim")
	flag.Float64Var(&cfg.RemittanceRate, "remit-rate", defaultRemittanceRate, "Fraction of submission files that get a matching remittance")
	flag.Float64Var(&cfg.DenialRate, "denial-rate", 0.2, "Fraction of remitted activity lines that are denied")
	flag.Int64Var(&cfg.Seed, "seed", 0, "RNG seed (0 = time-based)")
	flag.IntVar(&cfg.Concurrency, "concurrency", defaultConcurrency, "Concurrent file writers")
	flag.Parse()

	if cfg.OutDir == "" {
		return nil, fmt.Errorf("-out is required")
	}
	if cfg.Files <= 0 || cfg.ClaimsPerFile <= 0 || cfg.ActivityLines <= 0 {
		return nil, fmt.Errorf("-files, -claims and -activities must be positive")
	}
	if cfg.RemittanceRate < 0 || cfg.RemittanceRate > 1 {
		return nil, fmt.Errorf("-remit-rate must be in [0,1]")
	}
	if cfg.DenialRate < 0 || cfg.DenialRate > 1 {
		return nil, fmt.Errorf("-denial-rate must be in [0,1]")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return cfg, nil
}
