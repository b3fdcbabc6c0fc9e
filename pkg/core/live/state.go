package live

import "fmt"

// CaptureState is the speech input state.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureListening
)

// String returns a human-readable state name.
func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "IDLE"
	case CaptureListening:
		return "LISTENING"
	default:
		return "UNKNOWN"
	}
}

// CaptureTrigger is an input to the capture state machine.
type CaptureTrigger string

const (
	TriggerStart       CaptureTrigger = "start"
	TriggerStop        CaptureTrigger = "stop"
	TriggerFinal       CaptureTrigger = "final"
	TriggerDeviceEnded CaptureTrigger = "device_ended"
	TriggerDeviceError CaptureTrigger = "device_error"
	TriggerShutdown    CaptureTrigger = "shutdown"
)

type captureEdge struct {
	from    CaptureState
	trigger CaptureTrigger
}

var captureTransitions = map[captureEdge]CaptureState{
	{CaptureIdle, TriggerStart}:            CaptureListening,
	{CaptureListening, TriggerStop}:        CaptureIdle,
	{CaptureListening, TriggerFinal}:       CaptureIdle,
	{CaptureListening, TriggerDeviceEnded}: CaptureIdle,
	{CaptureListening, TriggerDeviceError}: CaptureIdle,
	{CaptureListening, TriggerShutdown}:    CaptureIdle,
	{CaptureIdle, TriggerShutdown}:         CaptureIdle,
}

// NextCaptureState returns the state reached from s on trigger, or an
// error if the transition is not allowed.
func NextCaptureState(s CaptureState, trigger CaptureTrigger) (CaptureState, error) {
	next, ok := captureTransitions[captureEdge{s, trigger}]
	if !ok {
		return s, &TransitionError{Machine: "capture", From: s.String(), Trigger: string(trigger)}
	}
	return next, nil
}

// PlaybackState is the speech output state.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackSpeaking
)

// String returns a human-readable state name.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "IDLE"
	case PlaybackSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// PlaybackTrigger is an input to the playback state machine.
type PlaybackTrigger string

const (
	TriggerUtteranceStart PlaybackTrigger = "utterance_start"
	TriggerUtteranceEnd   PlaybackTrigger = "utterance_end"
	TriggerUtteranceError PlaybackTrigger = "utterance_error"
	TriggerCancel         PlaybackTrigger = "cancel"
)

type playbackEdge struct {
	from    PlaybackState
	trigger PlaybackTrigger
}

var playbackTransitions = map[playbackEdge]PlaybackState{
	{PlaybackIdle, TriggerUtteranceStart}:     PlaybackSpeaking,
	{PlaybackSpeaking, TriggerUtteranceStart}: PlaybackSpeaking,
	{PlaybackSpeaking, TriggerUtteranceEnd}:   PlaybackIdle,
	{PlaybackSpeaking, TriggerUtteranceError}: PlaybackIdle,
	{PlaybackSpeaking, TriggerCancel}:         PlaybackIdle,
	{PlaybackIdle, TriggerCancel}:             PlaybackIdle,
}

// NextPlaybackState returns the state reached from s on trigger, or an
// error if the transition is not allowed.
func NextPlaybackState(s PlaybackState, trigger PlaybackTrigger) (PlaybackState, error) {
	next, ok := playbackTransitions[playbackEdge{s, trigger}]
	if !ok {
		return s, &TransitionError{Machine: "playback", From: s.String(), Trigger: string(trigger)}
	}
	return next, nil
}

// ConversationState is the lifecycle of one conversation.
type ConversationState int

const (
	ConversationConnecting ConversationState = iota
	ConversationActive
	ConversationEnded
)

// String returns a human-readable state name.
func (s ConversationState) String() string {
	switch s {
	case ConversationConnecting:
		return "CONNECTING"
	case ConversationActive:
		return "ACTIVE"
	case ConversationEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// ConversationTrigger is an input to the conversation state machine.
type ConversationTrigger string

const (
	TriggerOpened        ConversationTrigger = "opened"
	TriggerUserEnd       ConversationTrigger = "user_end"
	TriggerAbnormalClose ConversationTrigger = "abnormal_close"
)

type conversationEdge struct {
	from    ConversationState
	trigger ConversationTrigger
}

var conversationTransitions = map[conversationEdge]ConversationState{
	{ConversationConnecting, TriggerOpened}:        ConversationActive,
	{ConversationConnecting, TriggerUserEnd}:       ConversationEnded,
	{ConversationConnecting, TriggerAbnormalClose}: ConversationEnded,
	{ConversationActive, TriggerUserEnd}:           ConversationEnded,
	{ConversationActive, TriggerAbnormalClose}:     ConversationEnded,
}

// NextConversationState returns the state reached from s on trigger, or an
// error if the transition is not allowed. Ended is terminal.
func NextConversationState(s ConversationState, trigger ConversationTrigger) (ConversationState, error) {
	next, ok := conversationTransitions[conversationEdge{s, trigger}]
	if !ok {
		return s, &TransitionError{Machine: "conversation", From: s.String(), Trigger: string(trigger)}
	}
	return next, nil
}

// TransitionError reports a rejected state transition.
type TransitionError struct {
	Machine string
	From    string
	Trigger string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition from %s on %s", e.Machine, e.From, e.Trigger)
}
