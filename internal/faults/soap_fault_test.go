package faults

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSOAPFault_RoundTripsThroughXML(t *testing.T) {
	body := RenderSOAPFault(SOAPFault{
		Code:   "Client.NotRM",
		Actor:  "urn:marlin:site",
		String: "out of sequence",
		Detail: "no active session",
	})

	var decoded xmlFault
	require.NoError(t, xml.Unmarshal(body, &decoded))
	assert.Equal(t, "Client.NotRM", decoded.Code)
	assert.Equal(t, "urn:marlin:site", decoded.Actor)
	assert.Equal(t, "out of sequence", decoded.String)
	assert.Equal(t, "no active session", decoded.Detail)
}

func TestRenderSOAPFault_OmitsEmptyActorAndDetail(t *testing.T) {
	body := RenderSOAPFault(SOAPFault{Code: "Server", String: "internal error"})

	assert.NotContains(t, string(body), "faultactor")
	assert.NotContains(t, string(body), "detail")
}
