// Package pipeline provides the eleven-stage in-order pipeline model.
package pipeline

import "github.com/sarchlab/ipsim/insts"

// Stage identifies one of the pipeline stages. The value is also the index
// of the stage's latch.
type Stage int

// Pipeline stages in program order.
const (
	StageIF Stage = iota
	StageID
	StageIA
	StageRR
	StageAdd
	StageMul
	StageDiv
	StageBR
	StageMem1
	StageMem2
	StageWB

	// NumStages is the pipeline depth.
	NumStages = int(StageWB) + 1
)

var stageNames = [NumStages]string{
	"IF", "ID", "IA", "RR", "Add", "Mul", "Div", "BR", "Mem1", "Mem2", "WB",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return "?"
	}
	return stageNames[s]
}

// Slot is the latch owned by one stage. It holds the in-flight copy of an
// instruction, which stages rewrite as it moves along.
type Slot struct {
	// Valid indicates if this latch holds an instruction that entered the
	// stage this cycle.
	Valid bool

	// PC is the fetch address of the instruction.
	PC int64

	// Inst is the in-flight instruction. Left and Right hold register
	// indices or immediates before RR and values afterwards.
	Inst insts.Instruction

	// Pred is the prediction made at fetch. For non-branches Target is PC+4.
	Pred Prediction

	// Seq is the fetch sequence number, starting at 1.
	Seq uint64

	// Illegal is set by ID when the opcode or a register field is invalid.
	Illegal bool

	// Fault is a deferred error raised when the instruction reaches BR.
	Fault error
}

// Clear resets the slot to an empty latch.
func (s *Slot) Clear() {
	*s = Slot{}
}

// Latches is the full set of pipeline latches, indexed by Stage.
type Latches [NumStages]Slot

// Occupancy returns a bitmask with bit s set when stage s holds a valid
// instruction.
func (l *Latches) Occupancy() uint16 {
	var mask uint16
	for s := range l {
		if l[s].Valid {
			mask |= 1 << s
		}
	}
	return mask
}
