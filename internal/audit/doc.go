// Package audit buffers security events and hands them to a Sink.
//
// The Dispatcher runs one goroutine per engine. In DropIfFull mode a slow sink
// costs dropped events, counted by Dropped, never request latency. Otherwise
// Emit blocks until the buffer has room or the caller's context ends.
//
// Sinks shipped here: NoOpSink, ChannelSink (tests), JSONWriterSink (one object
// per line) and ZapSink. Deciding which events exist is the engine's job.
package audit
