// Package memory provides long-term memory for a companion chat bot.
//
// Memory is kept per (user, character) pair in two shapes:
//   - Profile: durable semantic facts (name, occupation, likes, ...)
//   - Episode: remembered events, embedded for retrieval by meaning
//
// Architecture:
//   - ProfileStore / EpisodeStore: durable storage (SQLite or PostgreSQL
//     with pgvector, optionally fronted by a chromem-go side-car index)
//   - Embedder: text-to-vector conversion (OpenAI-compatible API, local ONNX
//     model, or the deterministic mock)
//   - Manager: similarity search, decay-aware ranking and context assembly
//   - Pipeline: best-effort extraction of facts and important events from
//     finished turns, driven by a Completer
//
// Integration:
//   - BEFORE the reply: Manager.BuildContext returns a text block for the
//     prompt (empty string means "omit the section")
//   - AFTER the reply: Dispatcher.Submit runs the Pipeline in the background
//
// Nothing in this package fails a conversation turn. Embedding, model and
// storage failures are logged and degrade to "no contribution this turn".
package memory
