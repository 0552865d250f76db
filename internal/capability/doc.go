// Package capability defines the contracts for the external capabilities the
// pipeline consumes: text generation, embedding, and speech synthesis.
//
// Implementations are swappable behind these interfaces and selected once by
// configuration (see the mock and hosted subpackages); business logic never
// branches on the backend.
package capability
