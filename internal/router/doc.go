// Package router implements the Message Decoder.
//
// Stream frames are loosely framed: an optional leading heartbeat marker
// "a", then JSON that is either one market object or an array whose
// elements may themselves be JSON-encoded strings. Decode normalizes a frame
// into zero or more market envelopes; Router turns those into
// model.MarketUpdate values and hands them on in arrival order.
package router
