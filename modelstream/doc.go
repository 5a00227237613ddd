// Package modelstream defines the model-backend contract the job engine
// consumes: given a conversation history and a set of callable tool
// schemas, produce a lazy stream of turn events (assistant text, tool-call
// requests, and a turn-completion signal).
//
// The package ships one production Backend, GollmBackend, which wraps a
// gollm.LLM instance, plus the error taxonomy and retry policy used to
// classify and recover from provider failures. Test code supplies its own
// scripted Backend implementations.
package modelstream
