package fedsim

import "os"

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Fedrec Federation Simulator
===========================

Plays federated rounds against a running server with honest and adversarial
clients, then checks that the trust graph separates them.

Usage:
  go run ./cmd/fedsim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8000")
  -honest int
        Number of honest clients (default 4)
  -adversarial int
        Number of adversarial clients (default 1)
  -rounds int
        Number of rounds to play (default 5)
  -dim int
        Embedding dimension, used when the server has no model yet (default 16)
  -hidden int
        Hidden layer width, used when the server has no model yet (default 128)
  -top int
        Number of recommendations to request at the end (default 5)
  -honest-std float
        Noise applied by honest clients (default 0.01)
  -attack-std float
        Noise applied by adversarial clients (default 5)
  -seed int
        Random seed (default 0)
  -timeout duration
        HTTP request timeout (default 30s)
  -report string
        Write the final report as JSON to this file
  -verbose
        Log every submission
  -help
        Show this help message

Examples:
  # Default run against a local server
  go run ./cmd/fedsim

  # Two attackers among eight clients over ten rounds
  go run ./cmd/fedsim -honest 8 -adversarial 2 -rounds 10 -report out/report.json
`)
}
