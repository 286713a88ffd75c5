// Package analysis scores connection fitness for everyday activities.
package analysis

// Requirements are the thresholds an activity needs
type Requirements struct {
	Download float64 // minimum Mbps
	Upload   float64 // minimum Mbps
	Ping     float64 // maximum ms
}

// Activity is one everyday use of the connection
type Activity struct {
	Name         string
	Icon         string
	Requirements Requirements
}

// Rating is the qualitative fitness of a connection for an activity
type Rating int

const (
	RatingPoor Rating = iota
	RatingNormal
	RatingGood
	RatingExcellent
)

var ratingLabels = [...]string{"Poor", "Normal", "Good", "Excellent"}
var ratingClasses = [...]string{"poor", "normal", "good", "great"}

// String returns the display label
func (r Rating) String() string {
	if r < RatingPoor || r > RatingExcellent {
		return "Unknown"
	}
	return ratingLabels[r]
}

// Class returns the style class used by renderers
func (r Rating) Class() string {
	if r < RatingPoor || r > RatingExcellent {
		return ""
	}
	return ratingClasses[r]
}

// Fitness is the scored result for one activity
type Fitness struct {
	Activity
	Score  int // satisfied thresholds, 0-3
	Rating Rating
}

var activities = []Activity{
	{Name: "Browsing", Icon: "fas fa-globe", Requirements: Requirements{Download: 5, Upload: 1, Ping: 100}},
	{Name: "Online Gaming", Icon: "fas fa-gamepad", Requirements: Requirements{Download: 15, Upload: 5, Ping: 50}},
	{Name: "Video Streaming", Icon: "fas fa-video", Requirements: Requirements{Download: 25, Upload: 5, Ping: 100}},
	{Name: "Video Call", Icon: "fas fa-video", Requirements: Requirements{Download: 10, Upload: 10, Ping: 80}},
}

// Activities returns a copy of the fixed activity table
func Activities() []Activity {
	out := make([]Activity, len(activities))
	copy(out, activities)
	return out
}

// Score counts the thresholds of req satisfied by the measured values
func Score(req Requirements, download, upload, ping float64) int {
	score := 0
	if download >= req.Download {
		score++
	}
	if upload >= req.Upload {
		score++
	}
	if ping <= req.Ping {
		score++
	}
	return score
}

// RatingForScore maps a 0-3 score to a rating
func RatingForScore(score int) Rating {
	switch {
	case score >= 3:
		return RatingExcellent
	case score == 2:
		return RatingGood
	case score == 1:
		return RatingNormal
	default:
		return RatingPoor
	}
}

// Evaluate scores a single activity
func Evaluate(a Activity, download, upload, ping float64) Fitness {
	score := Score(a.Requirements, download, upload, ping)
	return Fitness{
		Activity: a,
		Score:    score,
		Rating:   RatingForScore(score),
	}
}

// Analyze scores every activity, in table order
func Analyze(download, upload, ping float64) []Fitness {
	out := make([]Fitness, 0, len(activities))
	for _, a := range activities {
		out = append(out, Evaluate(a, download, upload, ping))
	}
	return out
}
