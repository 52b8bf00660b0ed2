// Package chatproto defines the demo message types exchanged by
// cmd/shmipc-server and cmd/shmipc-client, exercising a structured
// object round trip over a tiered codec rather than plain text.
package chatproto

import "time"

// Request is one client-to-server message.
type Request struct {
	From string    `msgpack:"from" cbor:"from"`
	Text string    `msgpack:"text" cbor:"text"`
	Sent time.Time `msgpack:"sent" cbor:"sent"`
}

// Response is one server-to-client message.
type Response struct {
	From string    `msgpack:"from" cbor:"from"`
	Text string    `msgpack:"text" cbor:"text"`
	Sent time.Time `msgpack:"sent" cbor:"sent"`
}
