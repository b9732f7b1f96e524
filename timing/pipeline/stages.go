package pipeline

import (
	"fmt"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/config"
)

// Each stage acts on its own latch in place. The engine moves the latch to
// the next stage afterwards.

// writeback commits the instruction in WB.
func (p *Pipeline) writeback(slot *Slot) {
	if slot.Inst.Op.WritesReg() {
		p.state.Regs.WriteReg(slot.Inst.Dest, slot.Inst.Right)
	}
	p.stats.Instructions++
	p.events.Committed = true
}

// memory2 performs the load read: Right holds the address.
func (p *Pipeline) memory2(slot *Slot) error {
	if slot.Inst.Op != insts.OpLD {
		return nil
	}

	addr := slot.Inst.Right
	v, err := p.state.Memory.Read(addr)
	if err != nil {
		return fmt.Errorf("%w (pc 0x%X: %v)", err, slot.PC, slot.Inst.Op)
	}
	if p.dcache != nil {
		p.dcache.Access(addr, false)
	}
	slot.Inst.Right = v
	return nil
}

// memory1 performs the store write: Left holds the address and Right the
// value.
func (p *Pipeline) memory1(slot *Slot) error {
	if slot.Inst.Op != insts.OpST {
		return nil
	}

	addr := slot.Inst.Left
	if err := p.state.Memory.Write(addr, slot.Inst.Right); err != nil {
		return fmt.Errorf("%w (pc 0x%X: %v)", err, slot.PC, slot.Inst.Op)
	}
	if p.dcache != nil {
		p.dcache.Access(addr, true)
	}
	return nil
}

// resolve is the BR stage. It is the first stage an instruction reaches
// only if every older branch was predicted correctly, so deferred faults
// are raised here.
func (p *Pipeline) resolve(slot *Slot) error {
	if slot.Fault != nil {
		if slot.Illegal && p.config.IllegalInstruction == config.IllegalDrop {
			p.logger.Printf("warning: dropping %v at pc 0x%X", slot.Fault, slot.PC)
			p.stats.Dropped++
			slot.Clear()
			return nil
		}
		return slot.Fault
	}

	if !slot.Inst.Op.IsBranch() {
		return nil
	}

	taken := emu.BranchTaken(slot.Inst.Op, slot.Inst.Right)
	target := emu.BranchTarget(slot.PC, slot.Inst.Left)
	if taken && !p.state.Memory.InRange(target/4) {
		return fmt.Errorf("%w: branch at pc 0x%X targets 0x%X", emu.ErrPCOutOfRange, slot.PC, target)
	}

	next := slot.PC + 4
	if taken {
		next = target
	}

	if p.config.PredictorUpdate {
		p.branchPredictor.Update(slot.PC, taken, target)
	}

	if next == slot.Pred.Target {
		p.stats.BranchCorrect++
		return nil
	}

	p.stats.BranchMispredictions++
	p.squashYounger()
	p.state.PC = next
	p.fetchHalted = false
	return nil
}

// squashYounger empties every latch younger than BR.
func (p *Pipeline) squashYounger() {
	n := 0
	for s := StageIF; s < StageBR; s++ {
		if p.latches[s].Valid {
			n++
		}
		p.latches[s].Clear()
	}
	p.stats.Flushes++
	p.stats.Squashed += uint64(n)
	p.events.Squashed = n
}

// divide is the Div stage. A zero divisor is recorded and raised at BR.
func (p *Pipeline) divide(slot *Slot) {
	if slot.Inst.Op != insts.OpDIV {
		return
	}
	p.compute(slot)
}

// multiply is the Mul stage.
func (p *Pipeline) multiply(slot *Slot) {
	if slot.Inst.Op != insts.OpMUL {
		return
	}
	p.compute(slot)
}

// add is the Add stage for ADD and SUB.
func (p *Pipeline) add(slot *Slot) {
	if slot.Inst.Op != insts.OpADD && slot.Inst.Op != insts.OpSUB {
		return
	}
	p.compute(slot)
}

func (p *Pipeline) compute(slot *Slot) {
	v, err := emu.Arith(slot.Inst.Op, slot.Inst.Left, slot.Inst.Right)
	if err != nil {
		slot.Fault = fmt.Errorf("%w (pc 0x%X: %v)", err, slot.PC, slot.Inst.Op)
		return
	}
	slot.Inst.Right = v
}

// readRegisters is the RR stage. Register fields are replaced by the
// values they name.
func (p *Pipeline) readRegisters(slot *Slot) {
	regs := p.state.Regs
	inst := &slot.Inst

	switch {
	case inst.Op.IsArith():
		inst.Left, inst.Right = regs.ReadReg(uint8(inst.Left)), regs.ReadReg(uint8(inst.Right))
	case inst.Op.IsBranch():
		inst.Right = regs.ReadReg(inst.Dest)
	case inst.Op == insts.OpLD:
		inst.Right = regs.ReadReg(uint8(inst.Left))
	case inst.Op == insts.OpST:
		inst.Left, inst.Right = regs.ReadReg(uint8(inst.Left)), regs.ReadReg(inst.Dest)
	}
}

// issue is the IA stage. SET moves its immediate into the result field.
func (p *Pipeline) issue(slot *Slot) {
	if slot.Inst.Op == insts.OpSET {
		slot.Inst.Right = slot.Inst.Left
	}
}

// decode is the ID stage. An invalid opcode or register field marks the
// slot illegal; the fault is raised at BR.
func (p *Pipeline) decode(slot *Slot) {
	if err := slot.Inst.Validate(); err != nil {
		slot.Illegal = true
		slot.Fault = fmt.Errorf("%w at pc 0x%X: %v", emu.ErrIllegalInstruction, slot.PC, err)
	}
}

// fetch is the IF stage. It admits at most one instruction into the IF
// latch, or stalls, or idles once fetch is disabled.
func (p *Pipeline) fetch() error {
	slot := &p.latches[StageIF]
	if slot.Valid {
		p.stall(false)
		return nil
	}
	if p.FetchExhausted() {
		return nil
	}

	pc := p.state.PC
	inst, err := p.state.Memory.ReadInst(pc / 4)
	if err != nil {
		return fmt.Errorf("%w: fetch at pc 0x%X", emu.ErrPCOutOfRange, pc)
	}

	if inst.Op.IsBranch() && p.config.BranchMode == config.BranchAtFetch {
		pred := p.branchPredictor.Predict(pc)
		p.stats.BranchPredictions++
		p.stats.FetchedBranches++
		p.state.PC = pred.Target
		return nil
	}

	if p.hazardUnit.DetectFetchHazard(inst, &p.latches) {
		p.stall(true)
		return nil
	}

	pred := Prediction{Target: pc + 4}
	if inst.Op.IsBranch() {
		pred = p.branchPredictor.Predict(pc)
		p.stats.BranchPredictions++
	}

	p.seq++
	*slot = Slot{Valid: true, PC: pc, Inst: inst, Pred: pred, Seq: p.seq}
	p.state.PC = pred.Target
	if inst.Op == insts.OpRET && p.config.RetHaltsFetch {
		p.fetchHalted = true
	}

	p.events.Fetched = true
	p.events.FetchPC = pc
	return nil
}

func (p *Pipeline) stall(hazard bool) {
	p.stats.Stalls++
	if hazard {
		p.stats.DataHazards++
	}
	p.events.Stalled = true
}
