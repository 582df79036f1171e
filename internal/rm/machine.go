// Package rm implements the WS-ReliableMessaging 1.2 subset session state
// machine (C7): CreateSequence, normal message, LastMessage and
// TerminateSequence, keyed by domain.SessionAddress.
package rm

import (
	"encoding/xml"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/core/ports"
)

var (
	ErrAlreadyExists          = errors.New("rm: Client/AlreadyExists")
	ErrMissingOffer           = errors.New("rm: Client/MissingOffer")
	ErrOutOfSequence          = errors.New("rm: Client/OutOfSequence")
	ErrAlreadyLast            = errors.New("rm: Client/AlreadyLast")
	ErrOutOfOrder             = errors.New("rm: Client/OutOfOrder")
	ErrMismatchedIdentifier   = errors.New("rm: Client/MismatchedIdentifier")
	ErrNotXML                 = errors.New("rm: Client/NotXML")
	ErrNoUser                 = errors.New("rm: Client/NoUser")
	ErrNotRM                  = errors.New("rm: Client/NotRM")
	ErrUnsupportedReliableType = errors.New("rm: Addressing reliable type is not implemented")
)

// ReliableType selects the WS-Addressing binding a site's RM requires.
// Only Sequence semantics are implemented. No Site field selects a
// ReliableType, and Handle never returns ErrUnsupportedReliableType;
// FaultCode maps that error to Client.NotImplemented.
type ReliableType int

const (
	ReliableTypeSequence ReliableType = iota
	ReliableTypeAddressing
)

// Reply carries what the pipeline writes back to the wire on a
// successful RM transition: the RM headers to echo, mirrored per the
// original's "swap request/response action URNs" addressing convention.
type Reply struct {
	Identifier    string
	AcceptAddress string
	Action        string
	ClientMsgID   uint64
	ServerMsgID   uint64
}

// Machine is the session-keyed WS-RM state machine.
type Machine struct {
	codec ports.SOAPCodec

	mu       sync.Mutex
	sessions map[domain.SessionAddress]*domain.RMSession
}

// NewMachine builds a Machine using codec to split incoming SOAP bodies.
// A nil codec defaults to ports.NewEnvelopeCodec().
func NewMachine(codec ports.SOAPCodec) *Machine {
	if codec == nil {
		codec = ports.NewEnvelopeCodec()
	}
	return &Machine{codec: codec, sessions: make(map[domain.SessionAddress]*domain.RMSession)}
}

// Handle is the site.ReliabilityMachine hook: it runs the RM gate checks
// and transition table against req.Body, and on success writes the
// session's reply headers into resp via SetHeader so the caller's wire
// codec can serialize them. It never touches resp.Body — the application
// handler still owns producing the SOAP response body.
func (m *Machine) Handle(s *domain.Site, req *domain.Request, resp *domain.Response) error {
	env, ok, err := m.codec.Decode(req.Body)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotXML
	}
	if env.Version != "1.2" {
		return ErrNotXML
	}
	if s.ReliableLogin && req.SID == "" {
		return ErrNoUser
	}
	if !env.RMPresent {
		return ErrNotRM
	}

	addr := req.SessionAddress()
	reply, err := m.transition(addr, env)
	if err != nil {
		m.destroy(addr)
		return err
	}

	resp.SetHeader("X-Marlin-RM-Identifier", reply.Identifier)
	if reply.AcceptAddress != "" {
		resp.SetHeader("X-Marlin-RM-Accept-Address", reply.AcceptAddress)
	}
	return nil
}

// transition dispatches to the specific action handler. Action
// classification follows the WS-RM action URN suffix; anything not
// recognized as CreateSequence/LastMessage/TerminateSequence is treated
// as a normal sequenced message.
func (m *Machine) transition(addr domain.SessionAddress, env ports.Envelope) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch classifyAction(env.Action) {
	case actionCreateSequence:
		return m.createSequence(addr, env)
	case actionLastMessage:
		return m.lastMessage(addr)
	case actionTerminateSequence:
		return m.terminateSequence(addr, env)
	default:
		return m.normalMessage(addr, env)
	}
}

func (m *Machine) createSequence(addr domain.SessionAddress, env ports.Envelope) (Reply, error) {
	if _, exists := m.sessions[addr]; exists {
		return Reply{}, ErrAlreadyExists
	}
	// RMHeader here is the CreateSequence element's inner XML, a single
	// <Offer> carrying the client's nonce as its <Identifier> child.
	clientNonce := extractIdentifier(env.RMHeader)
	if clientNonce == "" {
		return Reply{}, ErrMissingOffer
	}
	session := &domain.RMSession{
		ServerNonce: "urn:uuid:" + uuid.NewString(),
		ClientNonce: clientNonce,
		ClientMsgID: domain.NextExpectedClientMsgID,
		ServerMsgID: 0,
	}
	m.sessions[addr] = session
	return Reply{Identifier: session.ServerNonce, AcceptAddress: addr.Path}, nil
}

func (m *Machine) normalMessage(addr domain.SessionAddress, env ports.Envelope) (Reply, error) {
	session, ok := m.sessions[addr]
	if !ok {
		return Reply{}, ErrOutOfSequence
	}
	clientSeq, serverSeq, msgNum := extractSequenceFields(env.RMHeader)
	if clientSeq != session.ServerNonce {
		return Reply{}, ErrOutOfSequence
	}
	if serverSeq != "" && serverSeq != session.ClientNonce {
		return Reply{}, ErrOutOfSequence
	}
	if msgNum != session.ClientMsgID {
		return Reply{}, ErrOutOfSequence
	}
	session.ClientMsgID++
	session.ServerMsgID++
	return Reply{
		Identifier:  session.ServerNonce,
		Action:      mirrorAction(env.Action),
		ClientMsgID: session.ClientMsgID,
		ServerMsgID: session.ServerMsgID,
	}, nil
}

func (m *Machine) lastMessage(addr domain.SessionAddress) (Reply, error) {
	session, ok := m.sessions[addr]
	if !ok {
		return Reply{}, ErrOutOfSequence
	}
	if session.LastMessageSeen {
		return Reply{}, ErrAlreadyLast
	}
	session.LastMessageSeen = true
	session.ClientMsgID++
	session.ServerMsgID++
	return Reply{Identifier: session.ServerNonce, ClientMsgID: session.ClientMsgID, ServerMsgID: session.ServerMsgID}, nil
}

func (m *Machine) terminateSequence(addr domain.SessionAddress, env ports.Envelope) (Reply, error) {
	session, ok := m.sessions[addr]
	if !ok {
		return Reply{}, ErrOutOfOrder
	}
	if !session.LastMessageSeen {
		return Reply{}, ErrOutOfOrder
	}
	if id := extractIdentifier(env.RMHeader); id != "" && id != session.ServerNonce {
		return Reply{}, ErrMismatchedIdentifier
	}
	delete(m.sessions, addr)
	return Reply{Identifier: session.ServerNonce}, nil
}

func (m *Machine) destroy(addr domain.SessionAddress) {
	m.mu.Lock()
	delete(m.sessions, addr)
	m.mu.Unlock()
}

// Destroy removes the session at addr, if any. Exported so callers
// outside this package (the fault emitter's RespondRMFault) can force a
// session's end without going through a transition.
func (m *Machine) Destroy(addr domain.SessionAddress) {
	m.destroy(addr)
}

// Session returns a copy of the session state at addr, for diagnostics
// and tests. The second return is false if no session exists.
func (m *Machine) Session(addr domain.SessionAddress) (domain.RMSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[addr]
	if !ok {
		return domain.RMSession{}, false
	}
	return *s, true
}

// Count returns the number of currently live RM sessions, for the §10
// active-session gauge.
func (m *Machine) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type action int

const (
	actionNormal action = iota
	actionCreateSequence
	actionLastMessage
	actionTerminateSequence
)

func classifyAction(a string) action {
	switch {
	case strings.HasSuffix(a, "CreateSequence"):
		return actionCreateSequence
	case strings.HasSuffix(a, "LastMessage"):
		return actionLastMessage
	case strings.HasSuffix(a, "TerminateSequence"):
		return actionTerminateSequence
	default:
		return actionNormal
	}
}

// extractIdentifier pulls the <wsrm:Identifier> text out of a raw RM
// header block. Returns "" if absent or malformed — callers treat that
// as "nothing to compare against" rather than a hard failure, since the
// codec here is intentionally not a full SOAP/WS-RM schema validator.
func extractIdentifier(rmHeader []byte) string {
	var probe struct {
		Identifier string `xml:"Identifier"`
	}
	if err := xml.Unmarshal(rmHeader, &probe); err != nil {
		return ""
	}
	return probe.Identifier
}

// extractSequenceFields parses a normal message's RM header: the
// client/server sequence nonces and the inbound message number. rmHeader
// is the <Sequence> element's inner XML — three sibling elements rather
// than a single root — so it's wrapped in a synthetic root before
// unmarshaling; encoding/xml only decodes the first element of a
// document otherwise. Malformed or absent fields decode as zero values,
// which the caller's comparisons against live session state reject.
func extractSequenceFields(rmHeader []byte) (clientSeq, serverSeq string, msgNum uint64) {
	var probe struct {
		ClientSequence string `xml:"ClientSequence"`
		ServerSequence string `xml:"ServerSequence"`
		MessageNumber  uint64 `xml:"MessageNumber"`
	}
	wrapped := make([]byte, 0, len(rmHeader)+9)
	wrapped = append(wrapped, []byte("<rm>")...)
	wrapped = append(wrapped, rmHeader...)
	wrapped = append(wrapped, []byte("</rm>")...)
	_ = xml.Unmarshal(wrapped, &probe)
	return probe.ClientSequence, probe.ServerSequence, probe.MessageNumber
}

// FaultCode maps a Machine error to the SOAP fault code a caller should
// send on the wire, falling back to the generic "Client.NotRM" for an
// error this package didn't originate.
func FaultCode(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return "Client.AlreadyExists"
	case errors.Is(err, ErrMissingOffer):
		return "Client.MissingOffer"
	case errors.Is(err, ErrOutOfSequence):
		return "Client.OutOfSequence"
	case errors.Is(err, ErrAlreadyLast):
		return "Client.AlreadyLast"
	case errors.Is(err, ErrOutOfOrder):
		return "Client.OutOfOrder"
	case errors.Is(err, ErrMismatchedIdentifier):
		return "Client.MismatchedIdentifier"
	case errors.Is(err, ErrNoUser):
		return "Client.NoUser"
	case errors.Is(err, ErrNotXML):
		return "Client.NotXML"
	case errors.Is(err, ErrUnsupportedReliableType):
		return "Client.NotImplemented"
	default:
		return "Client.NotRM"
	}
}

// mirrorAction swaps a request action URN for its response counterpart,
// per the original's "server is responding, not originating" convention:
// every reply action gets a "Response" suffix unless one is already
// present.
func mirrorAction(requestAction string) string {
	if requestAction == "" {
		return ""
	}
	if strings.HasSuffix(requestAction, "Response") {
		return requestAction
	}
	return requestAction + "Response"
}
