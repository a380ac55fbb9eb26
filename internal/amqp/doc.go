// Package amqp delivers workflow transition events to a RabbitMQ topic
// exchange.
//
// Events are serialized as JSON and routed by their type name, so consumers
// bind with patterns like "workflow.WorkflowRejectedEvent" or "workflow.#".
// Publishing is best-effort with retry: a broker outage never affects the
// committed transition that produced the event.
package amqp
