// Package gem builds the GEM (SEMI E30) messages that the protocol layer sends on its own,
// the Stream 9 error reports.
//
// Applications build every other message themselves with secs2 items.
package gem
