// Package hsms holds the message model and the building blocks shared by the HSMS-SS and SECS-I
// connections.
//
// Messages:
//   - DataMessage is a SECS-II message with stream, function, W-bit, device id and system bytes.
//     It is used by both transports.
//   - ControlMessage carries the HSMS Select, Deselect, Linktest, Reject and Separate procedures.
//   - DecodeFrame and DecodeMessage turn HSMS frames back into messages.
//
// Connection building blocks:
//   - TransactionTable correlates requests and replies by system bytes, with a deadline per entry.
//   - ConnStateMgr is the NotConnected / Connected / Selected state machine.
//   - EventDispatcher delivers the closed set of connection events to handlers, in order.
//   - Transport abstracts the byte stream; StreamTransport adapts a net.Conn.
//   - TaskManager groups the goroutines of a connection.
//
// Errors are typed and can be matched with errors.Is and errors.As: ConstructionError,
// ProtocolError, TimeoutError, StateError, TransportError, RejectError and ErrConnClosed.
package hsms
