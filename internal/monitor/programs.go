// Package monitor runs the wallet scan pipeline: signature selection,
// profit estimation, the alert filter chain, and the scan scheduler.
package monitor

// programMap labels well-known on-chain programs by venue
var programMap = map[string]string{
	// AMMs / aggregators
	"JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i":  "Jupiter",
	"rvk5K9sH1t7h8GmHh5w7bqgTt3m1oJ2qkNoRayDiUM":   "Raydium",
	"9xQeWvG816bUx9EPfDdC1WJ4VqV6g5Gz5X5H5Q5tLCH":  "OpenBook",
	"orcaEKTdNdXBgaAwyQUpfCw9W7jfvAbzGt9xa1sG9W":   "Orca",
	// NFT marketplaces
	"tensorFLkNft111111111111111111111111111111":   "Tensor",
	"MEisE1HzehtrDpAAT8PnLHjpSSkRYakotTuJRPjTpo8":  "MagicEden",
	// system programs, ignored for labeling
	"ComputeBudget111111111111111111111111111111":  "System",
	"SysvarRent111111111111111111111111111111111":  "System",
}

var nftVenues = map[string]bool{"Tensor": true, "MagicEden": true, "Blur": true}
var ammVenues = map[string]bool{"Jupiter": true, "Raydium": true, "OpenBook": true, "Orca": true}

// LabelFromPrograms picks the majority venue label among the given
// program ids, ignoring system and unknown programs.
func LabelFromPrograms(programs []string) string {
	if len(programs) == 0 {
		return "Unknown"
	}
	counts := make(map[string]int)
	for _, p := range programs {
		label, ok := programMap[p]
		if !ok {
			continue
		}
		if label == "System" {
			continue
		}
		counts[label]++
	}

	best := "Unknown"
	bestCount := 0
	for label, n := range counts {
		if n > bestCount || (n == bestCount && best != "Unknown" && label < best) {
			best = label
			bestCount = n
		}
	}
	return best
}

// ClassifySignal maps a venue label to a coarse signal type
func ClassifySignal(venue string) string {
	if nftVenues[venue] {
		return "Scalper NFT"
	}
	if ammVenues[venue] {
		return "AMM / Aggregator"
	}
	return "Signal"
}
