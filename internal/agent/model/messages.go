package model

import "encoding/json"

// Envelope types exchanged over the WebSocket boundary.
const (
	TypeUserMessage       = "user_message"
	TypePreRideMessage    = "pre_ride_message"
	TypeUIAction          = "ui_action"
	TypeTrigger           = "trigger"
	TypeUnityMessage      = "unity_message"
	TypeAssistantResponse = "assistant_response"
	TypeUnityResponse     = "unity_response"
	TypeError             = "error"
	TypeAck               = "ack"
	// Ride lifecycle outcomes reported by the simulator.
	TypeBookingOutcome = "risposta_prenotazione"
	TypeEndRideOutcome = "risposta_fine_corsa"
)

// Booking status values pushed to the chat client.
const (
	BookingConfirmed   = "confirmed"
	BookingRideStarted = "ride_started"
	BookingEnded       = "ended"
	BookingError       = "error"
)

// OutcomeConfirmed is the esito value of a successful lifecycle outcome.
const OutcomeConfirmed = "confermato"

// Envelope is decoded first to route a raw frame.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// UserMessage is a free-text in-ride message.
type UserMessage struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	RideID    string   `json:"ride_id"`
	City      string   `json:"city"`
	Taxi      Position `json:"taxi"`
	Text      string   `json:"text"`
}

// PreRideMessage is a free-text message from the booking screen.
type PreRideMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	City      string `json:"city"`
	Text      string `json:"text"`
}

// UIAction is a button click.
type UIAction struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	ActionID  string         `json:"action_id"`
	Payload   map[string]any `json:"payload"`
}

// Trigger is a ride lifecycle event raised by the simulator or the client.
type Trigger struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	RideID    string         `json:"ride_id"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
}

// UnityMessage is a status or event frame sent by the simulator.
type UnityMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Action    string          `json:"action"`
	Payload   map[string]any  `json:"payload"`
	Raw       json.RawMessage `json:"-"`
}

// RideEvent is a booking or end-of-ride outcome sent by the simulator.
type RideEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Esito     string         `json:"esito"`
	Payload   map[string]any `json:"payload"`
}

// Confirmed reports a positive outcome.
func (e RideEvent) Confirmed() bool {
	return e.Esito == OutcomeConfirmed
}

// Response is the outbound envelope.
type Response struct {
	Type          string         `json:"type"`
	SessionID     string         `json:"session_id"`
	Message       string         `json:"message,omitempty"`
	UIOptions     []UIOption     `json:"ui_options,omitempty"`
	Commands      []Command      `json:"commands,omitempty"`
	SelectedPOI   map[string]any `json:"selected_poi,omitempty"`
	MessageType   string         `json:"message_type,omitempty"`
	BookingStatus string         `json:"booking_status,omitempty"`
	Action        string         `json:"action,omitempty"`
	Status        string         `json:"status,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	// PreRide marks pre-ride responses so selected_poi is always serialized.
	PreRide bool `json:"-"`
}

// MarshalJSON always emits message, ui_options and commands on assistant
// responses, and selected_poi (possibly null) on pre-ride ones. Acks and
// simulator replies carry only their populated fields.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if r.Type != TypeAssistantResponse && r.Type != TypeError {
		return json.Marshal(plain(r))
	}
	opts, cmds := r.UIOptions, r.Commands
	if opts == nil {
		opts = []UIOption{}
	}
	if cmds == nil {
		cmds = []Command{}
	}
	if !r.PreRide {
		return json.Marshal(struct {
			plain
			Message   string     `json:"message"`
			UIOptions []UIOption `json:"ui_options"`
			Commands  []Command  `json:"commands"`
		}{plain(r), r.Message, opts, cmds})
	}
	return json.Marshal(struct {
		plain
		Message     string         `json:"message"`
		UIOptions   []UIOption     `json:"ui_options"`
		Commands    []Command      `json:"commands"`
		SelectedPOI map[string]any `json:"selected_poi"`
	}{plain(r), r.Message, opts, cmds, r.SelectedPOI})
}

// RerouteTarget returns the payload of the first REROUTE_TO command, or nil.
func (r *Response) RerouteTarget() map[string]any {
	for _, c := range r.Commands {
		if c.Type == CommandRerouteTo {
			return c.Payload
		}
	}
	return nil
}

// Reply builds an assistant response with empty option and command lists.
func Reply(sessionID, message string) *Response {
	return &Response{
		Type:      TypeAssistantResponse,
		SessionID: sessionID,
		Message:   message,
		UIOptions: []UIOption{},
		Commands:  []Command{},
	}
}

// ErrorResponse builds the boundary error envelope.
func ErrorResponse(sessionID, message string) *Response {
	resp := Reply(sessionID, message)
	resp.Type = TypeError
	return resp
}

// Frame types sent to the simulator.
const (
	SimChangePolicy      = "cambio_policy"
	SimChangeDestination = "cambio_destinazione"
	SimEndRide           = "fine_corsa"
)

// CommandRedirectToMain tells the chat client to leave the ride screen.
const CommandRedirectToMain CommandType = "redirect_to_main"

// SimulatorFrame is an outbound command toward the simulator.
type SimulatorFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload"`
}
