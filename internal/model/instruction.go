package model

// CustomInstruction is a user-authored free-text rule bound to exactly one
// tag category. An ordered collection of these biases the classifier's
// prompt; instructions never affect control flow.
type CustomInstruction struct {
	Tag  Tag    `json:"tag" yaml:"tag"`
	Text string `json:"text" yaml:"text"`
}
