package ports

import "encoding/xml"

const (
	nsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	nsSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	nsWSA    = "http://www.w3.org/2005/08/addressing"
	nsWSRM   = "http://docs.oasis-open.org/ws-rx/wsrm/200702"
	nsWSSE   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
)

// envelopeCodec is the default, minimal SOAPCodec: it decodes only enough
// structure to classify a message and hand the RM/Security headers to
// their respective state machines as opaque bytes. It never validates
// the body against a schema.
type envelopeCodec struct{}

// NewEnvelopeCodec returns the default SOAPCodec.
func NewEnvelopeCodec() SOAPCodec { return envelopeCodec{} }

type xmlHeaderBlock struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

type xmlEnvelope struct {
	XMLName xml.Name
	Header  struct {
		Items []xmlHeaderBlock `xml:",any"`
	} `xml:"Header"`
	Body struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

func (envelopeCodec) Decode(body []byte) (Envelope, bool, error) {
	var raw xmlEnvelope
	if err := xml.Unmarshal(body, &raw); err != nil {
		return Envelope{}, false, nil
	}
	var version string
	switch raw.XMLName.Space {
	case nsSOAP11:
		version = "1.1"
	case nsSOAP12:
		version = "1.2"
	default:
		return Envelope{}, false, nil
	}

	env := Envelope{Version: version, Body: raw.Body.Inner}
	for _, h := range raw.Header.Items {
		switch h.XMLName.Space {
		case nsWSA:
			if h.XMLName.Local == "Action" {
				env.Action = string(h.Inner)
			}
		case nsWSRM:
			env.RMPresent = true
			env.RMHeader = append([]byte(nil), h.Inner...)
		case nsWSSE:
			env.SecurityHeader = append([]byte(nil), h.Inner...)
		}
	}
	return env, true, nil
}
