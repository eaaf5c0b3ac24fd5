package fiberrt

// These constants size the cache-line padding in state.go's runtimeState;
// verified against unsafe.Sizeof in state_test.go.
const (
	// sizeOfCacheLine covers both the common x86-64 value (64) and the
	// wider Apple Silicon / other ARM64 value (128); padding to the
	// larger figure is safe on both.
	sizeOfCacheLine = 128

	// sizeOfAtomicUint32 is the size of an atomic.Uint32 variable.
	sizeOfAtomicUint32 = 4
)
