// Package live implements the client side of a real-time voice session with
// a hosted speech model.
//
// # Architecture
//
//   - Session: owns the transport, demultiplexes server messages and drives
//     the other components. One receive goroutine handles messages strictly
//     in arrival order.
//   - Scheduler: plays decoded model audio gaplessly on an Output clock and
//     cuts it on interruption.
//   - Capture: frames microphone input into fixed PCM16 windows and sends
//     them without blocking the device.
//   - Dispatcher: answers function calls from the model with local handlers.
//
// # Data Flow
//
//	InputDevice → Capture → Transport.SendAudio
//
//	Transport.Receive → Demux → transcripts / turn complete → Observer
//	                         → audio → Scheduler → Output
//	                         → interrupted → Scheduler.Interrupt
//	                         → tool call → Dispatcher → Transport.SendToolResponses
//
// # State Machine
//
//	CONNECTING → OPEN → CLOSED
//	     └────────┴──→ ERRORED (terminal, no reconnect)
package live
