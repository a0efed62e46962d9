// Package broker is a thin durable-messaging layer over Kafka.
//
// It provides publishing, consumer-group consumption with manual offset
// commits, topic provisioning and offset/lag introspection. Delivery is
// at-least-once: an offset is committed only after the handler reports
// the message handled (or deliberately skipped), so handlers must
// tolerate redelivery.
package broker
