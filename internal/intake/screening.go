package intake

// Instrument describes the shape and scoring of one screening instrument.
// Question content is out of scope here; the registry holds only item count,
// the valid response range, and severity bands over the total score.
type Instrument struct {
	Name  string
	Items int
	Min   int
	Max   int
	Bands []SeverityBand
}

// SeverityBand labels total scores at or above Floor, up to the next band.
type SeverityBand struct {
	Floor int
	Label string
}

// instruments is the registry of accepted screening instruments. Responses
// for any other instrument name are rejected by the validator.
var instruments = map[string]Instrument{
	"phq9": {
		Name:  "phq9",
		Items: 9,
		Min:   0,
		Max:   3,
		Bands: []SeverityBand{
			{Floor: 0, Label: "minimal"},
			{Floor: 5, Label: "mild"},
			{Floor: 10, Label: "moderate"},
			{Floor: 15, Label: "moderately severe"},
			{Floor: 20, Label: "severe"},
		},
	},
	"gad7": {
		Name:  "gad7",
		Items: 7,
		Min:   0,
		Max:   3,
		Bands: []SeverityBand{
			{Floor: 0, Label: "minimal"},
			{Floor: 5, Label: "mild"},
			{Floor: 10, Label: "moderate"},
			{Floor: 15, Label: "severe"},
		},
	},
}

// InstrumentByName returns the registered instrument, if any.
func InstrumentByName(name string) (Instrument, bool) {
	ins, ok := instruments[name]
	return ins, ok
}

// Score sums the responses. Callers pass validated responses; out-of-shape
// input has been rejected before scoring.
func (ins Instrument) Score(responses []int) int {
	total := 0
	for _, r := range responses {
		total += r
	}
	return total
}

// Severity returns the band label for a total score: the label of the
// highest band whose floor the score reaches.
func (ins Instrument) Severity(score int) string {
	label := ""
	for _, b := range ins.Bands {
		if score >= b.Floor {
			label = b.Label
		}
	}
	return label
}
