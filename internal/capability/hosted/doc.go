// Package hosted implements the generation, embedding, and speech
// capabilities against OpenAI-compatible HTTP APIs. All clients share the
// same bounded retry policy with exponential backoff and Retry-After
// support.
package hosted
