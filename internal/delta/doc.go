// Package delta is the change-detection and vectorization engine.
//
// Given two aligned categorical raster snapshots it produces hotspot
// features: maximal 4-connected regions of pixels that changed class,
// each with origin class, destination class, a bijective transition code,
// exact pixel-count area, and traced polygon geometry.
//
// Processing order is fixed: align, classify, vectorize, measure,
// simplify, commit. Classification and per-tile labeling run in parallel;
// the cross-tile union-find merge is the only sequential section. The
// engine performs no I/O; loading belongs to internal/raster and
// persistence to the Sink implementation.
package delta
