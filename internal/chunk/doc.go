// Package chunk splits ordered collections into capped, positionally tagged
// chunks and reassembles them on receipt.
//
// Two tagging schemes share one Transfer:
// - boundary: first/last flags, records applied through a keyed sink
// - offset: strictly increasing, gap-free offsets checked against a cursor
//
// Any violation of ordering is reported as a desync; nothing is repaired.
package chunk
