// Package secs2 implements the SECS-II data item model and its binary codec.
//
// An Item is an immutable value tree made of lists, ASCII strings, binary data, booleans,
// signed/unsigned integers and floats. Encode and Decode convert between items and the SECS-II
// wire form, where each item is a format byte, one to three big-endian length bytes and a
// payload. The codec keeps no state and is safe for concurrent use.
//
// Usage:
//
//	body := secs2.L(
//	    secs2.A("MDLN-A"),
//	    secs2.A("SOFTREV-1"),
//	)
//
//	data, err := secs2.Encode(body)
//	if err != nil {
//	    return err
//	}
//
//	item, err := secs2.DecodeAll(data)
//
// Items also render to SML text with ToSML, e.g. for logging. Parsing SML is left to callers.
package secs2
