// Package decode defines the contracts shared by the sequence generation
// strategies: the wrapped language model, its opaque per-beam state, the
// vocabulary, and the Adapter that drives the model one step at a time.
//
// Strategies (see the sampling and beam packages) never talk to a Model
// directly. They consume a Stepper, which the Adapter implements, and return
// one ordered slice of Hypothesis values per batch element.
package decode
