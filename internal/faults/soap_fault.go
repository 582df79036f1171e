package faults

import "encoding/xml"

// SOAPFault is the minimal fault shape respond_soap_fault and
// respond_rm_fault render: code/actor/string/detail, independent of
// SOAP 1.1 vs 1.2 envelope wrapping — callers that need a fully
// enveloped fault wrap RenderSOAPFault's output in their own Envelope,
// matching the ports package's policy of not owning envelope assembly.
type SOAPFault struct {
	Code   string
	Actor  string
	String string
	Detail string
}

type xmlFault struct {
	XMLName xml.Name `xml:"Fault"`
	Code    string   `xml:"faultcode"`
	Actor   string   `xml:"faultactor,omitempty"`
	String  string   `xml:"faultstring"`
	Detail  string   `xml:"detail,omitempty"`
}

// RenderSOAPFault marshals fault into a <Fault> element. Marshal errors
// are unreachable for this fixed, string-only shape, so they're
// swallowed in favor of a minimal fallback body.
func RenderSOAPFault(fault SOAPFault) []byte {
	body, err := xml.Marshal(xmlFault{
		Code:   fault.Code,
		Actor:  fault.Actor,
		String: fault.String,
		Detail: fault.Detail,
	})
	if err != nil {
		return []byte("<Fault><faultcode>" + fault.Code + "</faultcode></Fault>")
	}
	return body
}
