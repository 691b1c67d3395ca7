// Package textutil provides filename sanitation and normalization helpers
// used when deriving output names from album and track metadata.
package textutil
