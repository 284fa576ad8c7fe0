package tier

// Tier is the loyalty rank derived from lifetime points earned. It is
// never computed from the spendable balance, so spending points cannot
// demote a user.
type Tier string

const (
	Bronze   Tier = "bronze"
	Silver   Tier = "silver"
	Gold     Tier = "gold"
	Platinum Tier = "platinum"
	Diamond  Tier = "diamond"
)

type threshold struct {
	tier Tier
	min  int
}

// Thresholds are ordered lowest to highest and act as a step function
// over totalEarned. Adjusting them here is the only supported way to
// retune tiers; every call site resolves through FromTotalEarned.
var thresholds = []threshold{
	{Bronze, 0},
	{Silver, 500},
	{Gold, 2000},
	{Platinum, 5000},
	{Diamond, 15000},
}

// FromTotalEarned maps lifetime earned points to a tier. Total and
// monotonic: defined for every non-negative input, non-decreasing as
// the input grows.
func FromTotalEarned(totalEarned int) Tier {
	current := Bronze
	for _, t := range thresholds {
		if totalEarned >= t.min {
			current = t.tier
		}
	}
	return current
}

// Next returns the tier above the given lifetime earnings and how many
// more points reach it. ok is false once the top tier is held.
func Next(totalEarned int) (next Tier, needed int, ok bool) {
	for _, t := range thresholds {
		if totalEarned < t.min {
			return t.tier, t.min - totalEarned, true
		}
	}
	return "", 0, false
}

// Rank returns the position of a tier in the ordered sequence, with
// Bronze at 0. Unknown labels rank below Bronze so a corrupt value can
// never satisfy a restriction.
func Rank(t Tier) int {
	for i, th := range thresholds {
		if th.tier == t {
			return i
		}
	}
	return -1
}

// AtLeast reports whether t satisfies a minimum-tier restriction.
func AtLeast(t, minimum Tier) bool {
	return Rank(t) >= Rank(minimum)
}

// Valid reports whether the label is one of the configured tiers.
func Valid(t Tier) bool {
	return Rank(t) >= 0
}
