// internal/message/message.go
// Contains the events read from the broker and the messages written to clients.
package message

// Broker event type tags, carried in the "@type" field.
const (
	TypeReceived        = "RECEIVED"
	TypeSent            = "SENT"
	TypeReceivedDetails = "RECEIVED_DETAILS"
)

// Client message tags, used as the single key of the outbound object.
const (
	TagReceived       = "received"
	TagSent           = "sent"
	TagMessageDetails = "messageDetails"
)

// BrokerEvent is one live activity event published to the exchange.
// It is one of Received, Sent or ReceivedDetails.
type BrokerEvent interface {
	ID() uint64
	brokerEvent()
}

// Received reports that the bot received a message from a user.
type Received struct {
	EventID     uint64 `json:"eventId"`
	IRCUserName string `json:"ircUserName"`
}

// Sent reports that the bot answered a user. Ping is nil when unmeasured.
type Sent struct {
	EventID     uint64 `json:"eventId"`
	IRCUserName string `json:"ircUserName"`
	Ping        *int32 `json:"ping"`
}

// ReceivedDetails carries the text of a previously received message.
type ReceivedDetails struct {
	EventID uint64 `json:"eventId"`
	Text    string `json:"text"`
}

func (e Received) ID() uint64        { return e.EventID }
func (e Sent) ID() uint64            { return e.EventID }
func (e ReceivedDetails) ID() uint64 { return e.EventID }

func (Received) brokerEvent()        {}
func (Sent) brokerEvent()            {}
func (ReceivedDetails) brokerEvent() {}

// ClientMessage is what a single WebSocket client receives for one event.
// It is one of ReceivedMessage, SentMessage or MessageDetails.
type ClientMessage interface {
	Tag() string
	clientMessage()
}

type ReceivedMessage struct {
	EventID uint64 `json:"eventId"`
	User    int32  `json:"user"`
}

type SentMessage struct {
	EventID uint64 `json:"eventId"`
	User    int32  `json:"user"`
	Ping    *int32 `json:"ping"`
}

type MessageDetails struct {
	EventID uint64 `json:"eventId"`
	Message string `json:"message"`
}

func (ReceivedMessage) Tag() string { return TagReceived }
func (SentMessage) Tag() string     { return TagSent }
func (MessageDetails) Tag() string  { return TagMessageDetails }

func (ReceivedMessage) clientMessage() {}
func (SentMessage) clientMessage()     {}
func (MessageDetails) clientMessage()  {}
