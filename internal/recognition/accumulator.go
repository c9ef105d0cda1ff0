package recognition

// identityTally holds what a report needs about one student: a count,
// confidence sums and the first few sightings. Its size does not grow with
// the length of the video.
type identityTally struct {
	studentID     string
	studentName   string
	count         int
	confidenceSum float64
	matchConfSum  float64
	samples       []FaceDetection
}

// tallies accumulates recognized detections per student in first-seen order.
type tallies struct {
	maxSamples int
	order      []*identityTally
	byID       map[string]*identityTally
}

func newTallies(maxSamples int) *tallies {
	return &tallies{maxSamples: maxSamples, byID: make(map[string]*identityTally)}
}

func (t *tallies) add(res RecognitionResult, det FaceDetection) {
	tally, ok := t.byID[res.StudentID]
	if !ok {
		tally = &identityTally{studentID: res.StudentID, studentName: res.StudentName}
		t.byID[res.StudentID] = tally
		t.order = append(t.order, tally)
	}
	tally.count++
	tally.confidenceSum += det.Confidence
	tally.matchConfSum += det.MatchConfidence
	if len(tally.samples) < t.maxSamples {
		tally.samples = append(tally.samples, det)
	}
}

func (t *tallies) students() []RecognizedStudent {
	out := make([]RecognizedStudent, 0, len(t.order))
	for _, tally := range t.order {
		n := float64(tally.count)
		out = append(out, RecognizedStudent{
			StudentID:       tally.studentID,
			StudentName:     tally.studentName,
			Confidence:      tally.confidenceSum / n,
			MatchConfidence: tally.matchConfSum / n,
			DetectionCount:  tally.count,
			Detections:      tally.samples,
		})
	}
	return out
}
