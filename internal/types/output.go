package types

// Chart is a chart suggestion for the presentation layer
type Chart struct {
	Type  string `json:"type"`
	X     string `json:"x"`
	Y     string `json:"y"`
	Title string `json:"title"`
}

// Output is the terminal artifact of a pipeline run
type Output struct {
	Charts   []Chart  `json:"charts"`
	Insights []string `json:"insights"`
}

// DegradedOutput wraps text that could not be parsed as an Output
func DegradedOutput(text string) *Output {
	return &Output{
		Charts:   []Chart{},
		Insights: []string{text},
	}
}
