// Package stream republishes an incrementally generated answer as edits of a
// single chat message.
//
// A Reassembler pulls fragments from a FragmentStream one at a time, keeps the
// concatenation of everything received so far, and edits the OutboundMessage
// every ChunkSize fragments. Each periodic edit is followed by a cool-down so
// the transport's edit-rate limits are respected; the delay comes after the
// edit, so users see text promptly and only the rate of later edits is
// throttled. When the stream ends the message is brought up to date exactly
// once; when it fails, the partial text stays visible with a note appended.
package stream
