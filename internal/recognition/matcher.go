package recognition

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Matcher attributes a query embedding to the closest enrolled student.
type Matcher struct {
	Threshold float64 // maximum accepted Euclidean distance
}

// Match scans every embedding of every student and keeps the closest one.
// Ties keep the first candidate in roster order. Embeddings whose dimension
// differs from the query are never selected. The face is recognized iff
// the best distance is at most the threshold; otherwise the candidate is
// discarded and only the distance is reported.
func (m Matcher) Match(query []float32, roster []database.EnrolledStudent) RecognitionResult {
	best := math.Inf(1)
	var bestStudent *database.EnrolledStudent

	for i := range roster {
		for _, emb := range roster[i].Embeddings {
			d := database.EuclideanDistance(query, emb.Embedding)
			if d < best {
				best = d
				bestStudent = &roster[i]
			}
		}
	}

	if bestStudent == nil {
		return RecognitionResult{Reason: ReasonNoEnrolled}
	}
	if best > m.Threshold {
		return RecognitionResult{Reason: ReasonBelowThreshold, Distance: best}
	}
	return RecognitionResult{
		Recognized:  true,
		StudentID:   bestStudent.ID,
		StudentName: bestStudent.Name,
		Confidence:  1 - best,
		Distance:    best,
	}
}
