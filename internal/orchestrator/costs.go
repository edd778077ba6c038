package orchestrator

import "github.com/blessandsoul/glow-server/internal/domain"

// CostTable maps processing types to their credit cost. The cost is
// snapshotted onto the job at creation; editing the table never changes
// what an existing job was charged.
type CostTable map[domain.ProcessingType]int

// DefaultCostTable returns the platform's launch pricing.
func DefaultCostTable() CostTable {
	return CostTable{
		domain.ProcessingTypeEnhance:  1,
		domain.ProcessingTypeUpscale:  1,
		domain.ProcessingTypeRestore:  2,
		domain.ProcessingTypePortrait: 2,
	}
}

// CostFor returns the credit cost for a processing type.
func (t CostTable) CostFor(pt domain.ProcessingType) (int, bool) {
	cost, ok := t[pt]
	return cost, ok
}
