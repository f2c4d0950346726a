// Package events implements the Event Pipeline: a bounded, multi-stage
// dispatch system. EventBus fans events out to subscribers; Pipeline runs
// each ingested event through filters, handlers, and correlation rules
// before it reaches application code.
//
// # Architecture
//
//	┌───────────┐      ┌──────────┐
//	│ Publisher │─────▶│ EventBus │─────▶ subscriber channels
//	└───────────┘      │ (fan-out)│
//	                   └──────────┘
//
//	┌───────────┐      ┌────────────┐      ┌─────────────┐
//	│  Ingest   │─────▶│ Pipeline   │─────▶│  Handlers   │
//	└───────────┘      │ (filter →  │      │  + rules    │
//	                   │  correlate)│      └─────────────┘
//	                   └────────────┘
//
// EventBus provides pub/sub fan-out with non-blocking publish and
// per-subscriber buffered channels. Pipeline has its own bounded queue,
// fed only by Ingest; it does not read from an EventBus subscription. It
// drains that queue with a worker pool, applying filters, then handlers,
// then correlation rules with a sliding time window, in that order, per
// event.
package events
