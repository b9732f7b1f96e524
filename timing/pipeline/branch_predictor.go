package pipeline

// PredictorEntries is the number of entries in the direct-mapped predictor.
const PredictorEntries = 16

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the total number of branch predictions made.
	Predictions uint64
	// Correct is the number of updates whose direction matched the counter.
	Correct uint64
	// Mispredictions is the number of updates whose direction did not.
	Mispredictions uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	total := s.Correct + s.Mispredictions
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	total := s.Correct + s.Mispredictions
	if total == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted next PC: the BTB entry when taken, PC+4
	// otherwise.
	Target int64
}

// BranchPredictor implements a 2-bit saturating counter (bimodal) predictor
// with a Branch Target Buffer (BTB). Both tables are indexed by
// (pc/4) mod PredictorEntries, so branches that alias share an entry.
type BranchPredictor struct {
	// 2-bit counters: 0=Strongly Not Taken, 1=Weakly Not Taken,
	// 2=Weakly Taken, 3=Strongly Taken.
	pt  [PredictorEntries]uint8
	btb [PredictorEntries]int64

	stats BranchPredictorStats
}

// NewBranchPredictor creates a predictor with every counter at 0, so it
// predicts not-taken until trained.
func NewBranchPredictor() *BranchPredictor {
	return &BranchPredictor{}
}

func index(pc int64) int {
	return int(uint64(pc) / 4 % PredictorEntries)
}

// Predict makes a branch prediction for the given PC.
func (bp *BranchPredictor) Predict(pc int64) Prediction {
	bp.stats.Predictions++

	idx := index(pc)
	if bp.pt[idx] > 1 {
		return Prediction{Taken: true, Target: bp.btb[idx]}
	}
	return Prediction{Target: pc + 4}
}

// Update updates the predictor with the actual branch outcome.
func (bp *BranchPredictor) Update(pc int64, taken bool, target int64) {
	idx := index(pc)
	counter := bp.pt[idx]

	if (counter > 1) == taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	if taken {
		if counter < 3 {
			bp.pt[idx] = counter + 1
		}
		bp.btb[idx] = target
	} else if counter > 0 {
		bp.pt[idx] = counter - 1
	}
}

// Counter returns the 2-bit counter consulted for pc.
func (bp *BranchPredictor) Counter(pc int64) uint8 {
	return bp.pt[index(pc)]
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics.
func (bp *BranchPredictor) Reset() {
	*bp = BranchPredictor{}
}
