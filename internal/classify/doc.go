// Package classify defines the pluggable sensitivity-classification
// boundary. The pipeline only depends on the Classifier interface, so a
// real content model can replace the random reference policy without
// touching pipeline logic.
package classify
