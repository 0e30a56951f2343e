// Package pipeline runs the appointment pipeline for a single client request.
//
// A run walks a fixed sequence of backend stages:
//
//	extract → entities → normalize → finalize → schedule
//
// Each stage consumes the payload produced by the previous one, so stages
// execute strictly one after another. The first stage that fails ends the
// run; its status and body become the run's outcome and no later stage is
// called. Scheduling is only reached once finalize has succeeded, and a
// scheduling failure fails the run as well.
//
// # Stage contract
//
// Payloads are treated as opaque JSON. The orchestrator only composes them:
//
//	extract   {"input_text": ...} or multipart "file"  → {raw_text, confidence}
//	entities  extract result                          → {entities, entities_confidence}
//	normalize entities result                         → {normalized, normalization_confidence}
//	finalize  {"normalized": <normalize>, "entities": <entities>} → {appointment, status}
//	schedule  finalize result                         → {task_id, status, run_at}
//
// On success the client receives the finalize result.
package pipeline
