package eval

import "github.com/MeKo-Tech/ledgerscan/internal/utils"

// DetectionReport counts region matches at an IoU threshold.
type DetectionReport struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// CompareDetections greedily matches each predicted box to the unmatched
// truth box with the highest IoU; a match needs IoU >= threshold.
func CompareDetections(predicted, truth []utils.Box, threshold float64) DetectionReport {
	var rep DetectionReport
	used := make([]bool, len(truth))
	for _, p := range predicted {
		best, bestIdx := 0.0, -1
		for i, t := range truth {
			if used[i] {
				continue
			}
			if iou := p.IoU(t); iou > best {
				best, bestIdx = iou, i
			}
		}
		if bestIdx >= 0 && best >= threshold {
			used[bestIdx] = true
			rep.TruePositives++
		} else {
			rep.FalsePositives++
		}
	}
	rep.FalseNegatives = len(truth) - rep.TruePositives
	rep.Precision = ratio(rep.TruePositives, rep.TruePositives+rep.FalsePositives)
	rep.Recall = ratio(rep.TruePositives, rep.TruePositives+rep.FalseNegatives)
	rep.F1 = f1(rep.Precision, rep.Recall)
	return rep
}
