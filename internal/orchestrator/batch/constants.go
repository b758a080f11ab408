package batch

// DefaultMaxSize is used when a batcher is created without a size.
const DefaultMaxSize = 5
