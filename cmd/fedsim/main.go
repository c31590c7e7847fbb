package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/fedrec/internal/fedsim"
	"github.com/okian/fedrec/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8000", "Base URL of the service")
		honest      = flag.Int("honest", fedsim.DefaultHonest, "Number of honest clients")
		adversarial = flag.Int("adversarial", fedsim.DefaultAdversarial, "Number of adversarial clients")
		rounds      = flag.Int("rounds", fedsim.DefaultRounds, "Number of rounds to play")
		dim         = flag.Int("dim", fedsim.DefaultDimension, "Embedding dimension")
		hidden      = flag.Int("hidden", fedsim.DefaultHiddenDim, "Hidden layer width")
		topK        = flag.Int("top", fedsim.DefaultTopK, "Number of recommendations to request")
		honestStd   = flag.Float64("honest-std", fedsim.DefaultHonestStd, "Noise applied by honest clients")
		attackStd   = flag.Float64("attack-std", fedsim.DefaultAttackStd, "Noise applied by adversarial clients")
		seed        = flag.Int64("seed", 0, "Random seed")
		timeout     = flag.Duration("timeout", fedsim.DefaultTimeout, "HTTP request timeout")
		reportFile  = flag.String("report", "", "Write the final report as JSON to this file")
		verbose     = flag.Bool("verbose", false, "Log every submission")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fedsim.ShowHelp()
		return
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithLevel(level)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	_, err := fedsim.Run(ctx, fedsim.Config{
		BaseURL:     *baseURL,
		Honest:      *honest,
		Adversarial: *adversarial,
		Rounds:      *rounds,
		Dimension:   *dim,
		HiddenDim:   *hidden,
		TopK:        *topK,
		HonestStd:   *honestStd,
		AttackStd:   *attackStd,
		Seed:        *seed,
		Timeout:     *timeout,
		ReportFile:  *reportFile,
		Verbose:     *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
