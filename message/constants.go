package message

// Wire separators. Messages are delimited text frames: parts are joined with
// the unit separator and complete messages are terminated with the record
// separator.
const (
	PartSeparator    = "\x1f"
	MessageSeparator = "\x1e"
)

// Topic identifies the subsystem a message belongs to.
type Topic string

const (
	TopicConnection Topic = "C"
	TopicAuth       Topic = "A"
	TopicError      Topic = "X"
	TopicEvent      Topic = "E"
	TopicRecord     Topic = "R"
	TopicRPC        Topic = "P"
	TopicPresence   Topic = "U"
)

// Action identifies what a message does within its topic.
type Action string

const (
	ActionAck          Action = "A"
	ActionCreateOrRead Action = "CR"
	ActionRead         Action = "R"
	ActionUpdate       Action = "U"
	ActionPatch        Action = "P"
	ActionDelete       Action = "D"
	ActionSubscribe    Action = "S"
	ActionUnsubscribe  Action = "US"
	ActionHas          Action = "H"
	ActionSnapshot     Action = "SN"
	ActionListen       Action = "L"
	ActionUnlisten     Action = "UL"
	ActionListenAccept Action = "LA"
	ActionListenReject Action = "LR"
	ActionError        Action = "E"
	ActionWriteAck     Action = "WA"

	ActionSubscriptionForPatternFound   Action = "SP"
	ActionSubscriptionForPatternRemoved Action = "SR"
	ActionSubscriptionHasProvider       Action = "SH"
)

// Event codes travel inside error messages and on the client error channel.
const (
	EventConnectionError    = "CONNECTION_ERROR"
	EventAckTimeout         = "ACK_TIMEOUT"
	EventResponseTimeout    = "RESPONSE_TIMEOUT"
	EventDeleteTimeout      = "DELETE_TIMEOUT"
	EventVersionExists      = "VERSION_EXISTS"
	EventListenerExists     = "LISTENER_EXISTS"
	EventNotListening       = "NOT_LISTENING"
	EventUnsolicitedMessage = "UNSOLICITED_MESSAGE"
	EventMessageDenied      = "MESSAGE_DENIED"
	EventMessageParseError  = "MESSAGE_PARSE_ERROR"
)

// Typed-token prefixes. A typed token carries a single value with a
// one-character type marker so scalars survive the text framing.
const (
	typeString    = 'S'
	typeObject    = 'O'
	typeNumber    = 'N'
	typeNull      = 'L'
	typeTrue      = 'T'
	typeFalse     = 'F'
	typeUndefined = 'U'
)
