package pipeline

import (
	"slices"

	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/config"
)

// HazardUnit decides at fetch whether a candidate instruction must wait
// for an older instruction still in flight.
type HazardUnit struct {
	mode config.HazardMode
}

// NewHazardUnit creates a hazard detection unit using the given rule.
func NewHazardUnit(mode config.HazardMode) *HazardUnit {
	return &HazardUnit{mode: mode}
}

// Mode returns the hazard rule in use.
func (h *HazardUnit) Mode() config.HazardMode {
	return h.mode
}

// DetectFetchHazard reports whether candidate must stall at IF, given the
// latches as they stand when IF runs.
func (h *HazardUnit) DetectFetchHazard(candidate insts.Instruction, latches *Latches) bool {
	if h.mode == config.HazardLegacy {
		return h.detectAddressHazard(candidate, &latches[StageRR])
	}
	return h.detectRAW(candidate, latches)
}

// detectRAW checks the candidate's source registers against producers in
// IA through BR. A producer in Mem1 or later writes back no later than the
// cycle the candidate reaches RR, and WB runs before RR within a cycle.
func (h *HazardUnit) detectRAW(candidate insts.Instruction, latches *Latches) bool {
	sources := candidate.SourceRegs()
	if len(sources) == 0 {
		return false
	}

	for s := StageIA; s <= StageBR; s++ {
		producer := &latches[s]
		if !producer.Valid || producer.Illegal || !producer.Inst.Op.WritesReg() {
			continue
		}
		if slices.Contains(sources, producer.Inst.Dest) {
			return true
		}
	}

	return false
}

// detectAddressHazard stalls a load or store whose address register is the
// destination of the instruction in RR.
func (h *HazardUnit) detectAddressHazard(candidate insts.Instruction, rr *Slot) bool {
	if !candidate.Op.IsMemory() || !rr.Valid {
		return false
	}
	return candidate.Left == int64(rr.Inst.Dest)
}
