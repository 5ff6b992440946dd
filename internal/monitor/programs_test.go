package monitor

import "testing"

func TestLabelFromPrograms(t *testing.T) {
	cases := []struct {
		name     string
		programs []string
		want     string
	}{
		{"empty", nil, "Unknown"},
		{"single amm", []string{"JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i"}, "Jupiter"},
		{"majority wins", []string{
			"JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i",
			"rvk5K9sH1t7h8GmHh5w7bqgTt3m1oJ2qkNoRayDiUM",
			"rvk5K9sH1t7h8GmHh5w7bqgTt3m1oJ2qkNoRayDiUM",
		}, "Raydium"},
		{"system ignored", []string{
			"ComputeBudget111111111111111111111111111111",
			"ComputeBudget111111111111111111111111111111",
			"MEisE1HzehtrDpAAT8PnLHjpSSkRYakotTuJRPjTpo8",
		}, "MagicEden"},
		{"all unknown", []string{"SomeRandomProgram"}, "Unknown"},
	}
	for _, c := range cases {
		if got := LabelFromPrograms(c.programs); got != c.want {
			t.Errorf("%s: expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestClassifySignal(t *testing.T) {
	cases := map[string]string{
		"Jupiter":   "AMM / Aggregator",
		"Raydium":   "AMM / Aggregator",
		"Tensor":    "Scalper NFT",
		"MagicEden": "Scalper NFT",
		"Unknown":   "Signal",
		"Debug":     "Signal",
	}
	for venue, want := range cases {
		if got := ClassifySignal(venue); got != want {
			t.Errorf("%s: expected %q, got %q", venue, want, got)
		}
	}
}
