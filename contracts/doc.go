// Package contracts defines the base message and event types shared by the
// workflow engine and its event publishers.
//
// Every event emitted by the engine embeds BaseEvent, which carries a
// generated ID, a UTC timestamp, the event type name, and the aggregate
// (workflow) the event belongs to. Publishers serialize events as JSON and
// route them by type name.
package contracts
