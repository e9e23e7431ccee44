// Package connection implements the broker connection supervisor.
//
// The Supervisor:
//   - Obtains a credential and opens one MQTT-over-websocket connection
//   - Subscribes to the quote topic and feeds messages to the change cache
//   - Reconnects on error, close or silence using a pluggable delay policy
//   - Runs a watchdog that replaces connections that stop delivering data
//
// At most one connect attempt is active or pending at any time. Events from
// connections that have already been replaced are ignored.
package connection
