package domain

// RMSession is WS-ReliableMessaging session state, keyed by a
// SessionAddress in the owning rm.Machine. All mutation happens under that
// machine's single lock; RMSession itself carries no lock.
type RMSession struct {
	ServerNonce      string // "urn:uuid:..." chosen by the server on CreateSequence
	ClientNonce      string // client-offered nonce from the CreateSequence offer
	ClientMsgID      uint64 // next expected inbound sequence number, starts at 1
	ServerMsgID      uint64 // last outbound sequence number, starts at 0
	LastMessageSeen  bool
}

// NextExpectedClientMsgID is ClientMsgID's value on session creation: the
// machine expects the first normal message to carry client_msg_num == 1.
const NextExpectedClientMsgID uint64 = 1
