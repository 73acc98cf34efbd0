//go:build !slotwalk_compressed

package heap

// CompressedPointers reports whether layouts may declare compressed
// pointer slots. Build with -tags slotwalk_compressed to enable them.
const CompressedPointers = false
