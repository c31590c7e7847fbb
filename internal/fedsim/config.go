// Package fedsim drives a running server with simulated federated clients.
//
// Honest participants return the published model with small jitter and a
// high validation signal. Adversarial participants return heavily perturbed
// weights with a low signal. After the configured rounds the simulator
// reads the trust graph back and checks that honest clients ended up more
// trusted than adversarial ones.
package fedsim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Honest      int           // Number of honest participants
	Adversarial int           // Number of adversarial participants
	Rounds      int           // Rounds to play
	Dimension   int           // User vector length for the final recommend call
	HiddenDim   int           // Hidden width used when the server has no model yet
	TopK        int           // Recommendations to request at the end
	HonestStd   float64       // Jitter applied by honest participants
	AttackStd   float64       // Perturbation applied by adversarial participants
	Seed        int64         // Seed for weights, signals and the user vector
	Timeout     time.Duration // HTTP request timeout
	ReportFile  string        // Optional JSON report path
	Verbose     bool          // Log every submission
}

// Default configuration constants.
const (
	DefaultHonest      = 4
	DefaultAdversarial = 1
	DefaultRounds      = 5
	DefaultDimension   = 16
	DefaultHiddenDim   = 128
	DefaultTopK        = 5
	DefaultHonestStd   = 0.01
	DefaultAttackStd   = 5.0
	DefaultTimeout     = 30 * time.Second
)

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Honest == 0 && c.Adversarial == 0 {
		c.Honest, c.Adversarial = DefaultHonest, DefaultAdversarial
	}
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.HiddenDim <= 0 {
		c.HiddenDim = DefaultHiddenDim
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.HonestStd <= 0 {
		c.HonestStd = DefaultHonestStd
	}
	if c.AttackStd <= 0 {
		c.AttackStd = DefaultAttackStd
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Report summarizes a simulation run.
type Report struct {
	Participants     int                `json:"participants"`
	Rounds           int                `json:"rounds"`
	Submissions      int                `json:"submissions"`
	Rejected         int                `json:"rejected"`
	Aggregations     int                `json:"aggregations"`
	ForcedCloses     int                `json:"forced_closes"`
	StartVersion     uint64             `json:"start_version"`
	FinalVersion     uint64             `json:"final_version"`
	Trust            map[string]float64 `json:"trust"`
	HonestTrust      float64            `json:"honest_trust"`
	AdversarialTrust float64            `json:"adversarial_trust"`
	Recommendations  []string           `json:"recommendations"`
	StartTime        time.Time          `json:"start_time"`
	Duration         time.Duration      `json:"duration"`
}
