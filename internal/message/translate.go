package message

import (
	"fmt"

	"github.com/erilali/liveactivity/internal/pseudonym"
)

// Translate converts a broker event into the message a connection salted
// with salt receives. Usernames are replaced by their pseudonym.
func Translate(event BrokerEvent, salt uint64) ClientMessage {
	switch e := event.(type) {
	case Received:
		return ReceivedMessage{EventID: e.EventID, User: pseudonym.Of(e.IRCUserName, salt)}
	case Sent:
		return SentMessage{EventID: e.EventID, User: pseudonym.Of(e.IRCUserName, salt), Ping: e.Ping}
	case ReceivedDetails:
		return MessageDetails{EventID: e.EventID, Message: e.Text}
	default:
		panic(fmt.Sprintf("message: unhandled broker event %T", event))
	}
}
