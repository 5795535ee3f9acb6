package domain

import "strings"

// SymbolRoot extracts the 4th dot-segment of a contract id, e.g. "MNQ" from
// "CON.F.US.MNQ.U25". Every per-instrument rule (max-contracts-per-instrument,
// symbol blocks, trade frequency, trade management) classifies solely on
// this root, never on the full contract id.
func SymbolRoot(contractID string) string {
	parts := strings.Split(contractID, ".")
	if len(parts) < 4 {
		return contractID
	}
	return parts[3]
}
