// Package live implements the device-facing controllers of a conversation:
// speech capture, microphone level metering and speech playback.
//
// # Architecture
//
//   - CaptureController: one recognition cycle at a time, final results only
//   - LevelMonitor: samples the open microphone stream on a frame ticker
//   - SpeechController: at most one utterance, newest wins
//   - Mailbox: never-blocking event queue drained by a single dispatcher
//
// Controllers never call back into their owner. They report through an
// EventSink, which the conversation orchestrator backs with a Mailbox so
// every event is handled on one goroutine in post order.
//
// # State Machines
//
//	Capture:  IDLE --start--> LISTENING --final|stop|device-ended--> IDLE
//	Playback: IDLE --utterance start--> SPEAKING --end|error|cancel--> IDLE
//
// Transitions are looked up in explicit tables (see state.go); anything
// not listed is rejected.
//
// # Usage
//
//	box := live.NewMailbox[live.Event]()
//	sink := live.EventSinkFunc(box.Post)
//
//	level := live.NewLevelMonitor(types.DefaultLevelInterval, slog.Default())
//	capture := live.NewCaptureController(recognizer, level, sink)
//	speech := live.NewSpeechController(synth, sink)
//
//	_ = capture.Start()
//	for range box.Ready() {
//	    for _, ev := range box.Drain() {
//	        switch e := ev.(type) {
//	        case live.CaptureFinalEvent:
//	            fmt.Println("User said:", e.Text)
//	        }
//	    }
//	}
package live
