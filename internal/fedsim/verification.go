package fedsim

import "fmt"

// verifyTrust fails when adversarial participants are trusted at least as
// much as honest ones. It is a no-op unless both kinds participated.
func verifyTrust(cfg Config, report *Report) error {
	if cfg.Honest == 0 || cfg.Adversarial == 0 {
		return nil
	}
	if report.HonestTrust <= report.AdversarialTrust {
		return fmt.Errorf("%w: honest %.3f, adversarial %.3f", ErrTrustInverse, report.HonestTrust, report.AdversarialTrust)
	}
	return nil
}
