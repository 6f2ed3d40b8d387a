// Package probe implements a radial-probe indexed ellipse locator for pupil
// detection in grayscale eye images.
//
// A probe table holds, for every (radius, orientation) pair, a short ray of
// sample pairs straddling a hypothesized circular boundary: positive probes
// just inside (expected dark pupil) and negative probes just outside
// (expected brighter iris). Scoring a hypothesis is a weighted mean of
// I(negative) - I(positive) over the used samples.
//
// # Pipeline
//
//  1. Probe Table Builder: NewTable builds offsets, usage flags and weights
//     for a Params geometry.
//  2. Coordinate Cache: offsets are rounded to integer pixel offsets and
//     linear indexes once per image size.
//  3. Coarse Locator: every center of the area of interest is scored against
//     every radius bin; the best (first on ties, row-major then ascending
//     radius) wins.
//  4. Fine Fitter: a second, denser table is scanned in a small window around
//     the coarse estimate; per-orientation boundary radii are then fitted with
//     a least-squares conic to obtain a rotated ellipse.
//
// # Training
//
// Train adapts the coarse table from a ground-truth ellipse: samples whose
// positive probe lies inside and negative probe outside the truth gain
// weight, the rest are handed to a DemotionPolicy. NormalizeWeights keeps the
// weights bounded and Save/Load persist the learned state.
//
// # Results
//
// A frame without a pupil is not an error: Detect returns an Ellipse with
// Valid == false. Errors are reserved for ErrConfiguration and ErrFormat.
package probe
