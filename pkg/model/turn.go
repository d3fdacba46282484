package model

// Turn is one role-tagged entry of the context window sent to the generator
type Turn struct {
	Role Role
	Text string
}

// InboundEvent is a user message delivered by the gateway
type InboundEvent struct {
	ChatID ChatID
	Text   string
}

// OutboundEvent is a generated reply delivered to the originating connection
type OutboundEvent struct {
	ChatID ChatID
	Text   string
}
