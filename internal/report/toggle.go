package report

import (
	"fmt"
	"io"
	"sort"

	"rtlcov/internal/vcd"
)

// ToggleOptions bounds the toggle report's listings.
type ToggleOptions struct {
	TopSignals int // least-covered signals to list
	TopScopes  int // least-covered scopes to list
}

// DefaultToggleOptions lists the 30 least-covered signals and the 20
// least-covered scopes.
func DefaultToggleOptions() ToggleOptions {
	return ToggleOptions{TopSignals: 30, TopScopes: 20}
}

func pct(num, den int) string {
	if den == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", 100.0*float64(num)/float64(den))
}

// Toggle writes the toggle-coverage side report to w: total bit
// coverage, the least-covered scopes and signals, and (when sampled)
// the rising-edge instruction histograms.
func Toggle(w io.Writer, res *vcd.ToggleResult, opts ToggleOptions) {
	fmt.Fprintf(w, "========================================\n")
	fmt.Fprintf(w, "Toggle Coverage (VCD)\n")
	fmt.Fprintf(w, "========================================\n")
	fmt.Fprintf(w, "Bits covered: %d/%d (%s)\n\n", res.CoveredBits, res.TotalBits, pct(res.CoveredBits, res.TotalBits))

	type scopeEntry struct {
		name string
		bits vcd.ScopeBits
	}
	scopes := make([]scopeEntry, 0, len(res.PerScope))
	for name, bits := range res.PerScope {
		scopes = append(scopes, scopeEntry{name, bits})
	}
	sort.Slice(scopes, func(i, j int) bool {
		ri := scopeRatio(scopes[i].bits)
		rj := scopeRatio(scopes[j].bits)
		if ri != rj {
			return ri < rj
		}
		if scopes[i].bits.Total != scopes[j].bits.Total {
			return scopes[i].bits.Total < scopes[j].bits.Total
		}
		return scopes[i].name < scopes[j].name
	})

	fmt.Fprintln(w, "Least covered scopes:")
	for i, s := range scopes {
		if opts.TopScopes > 0 && i >= opts.TopScopes {
			break
		}
		name := s.name
		if name == "" {
			name = "<root>"
		}
		fmt.Fprintf(w, "  %s: %d/%d (%s)\n", name, s.bits.Covered, s.bits.Total, pct(s.bits.Covered, s.bits.Total))
	}

	fmt.Fprintln(w, "\nLeast covered signals:")
	for i, v := range res.Vars {
		if opts.TopSignals > 0 && i >= opts.TopSignals {
			break
		}
		fmt.Fprintf(w, "  %s: %d/%d (%s)\n", v.Var.Name, v.CoveredBits(), v.TotalBits(), pct(v.CoveredBits(), v.TotalBits()))
	}

	fmt.Fprintf(w, "\n========================================\n")
	fmt.Fprintf(w, "Functional Coverage (sampled on rising clock edges)\n")
	fmt.Fprintf(w, "========================================\n")
	if res.Sample == nil {
		fmt.Fprintln(w, "clock/pc/instruction signals not resolved; sampling skipped")
		return
	}

	s := res.Sample
	fmt.Fprintf(w, "Instructions sampled: %d\n", s.Samples)
	fmt.Fprintf(w, "Unique PCs: %d (min=0x%08x, max=0x%08x)\n", s.UniquePCs, s.MinPC, s.MaxPC)

	fmt.Fprintf(w, "\nOpcodes executed (hex):\n  %s\n", histLine(s.Opcodes))
	if len(s.Functs) > 0 {
		fmt.Fprintf(w, "\nSPECIAL funct executed (hex):\n  %s\n", histLine(s.Functs))
	}
	if len(s.BranchRT) > 0 {
		fmt.Fprintf(w, "\nREGIMM rt executed (hex):\n  %s\n", histLine(s.BranchRT))
	}
}

func scopeRatio(b vcd.ScopeBits) float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Covered) / float64(b.Total)
}

// histLine formats a histogram as "key(count)" pairs in ascending key
// order.
func histLine(h map[int]int) string {
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%02x(%d)", k, h[k])
	}
	return out
}
