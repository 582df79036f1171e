package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSite_SetHandlerAndLookup(t *testing.T) {
	s := &Site{}
	called := false
	s.SetHandler(GET, func(req *Request, resp *Response) { called = true })

	h := s.HandlerFor(GET)
	require.NotNil(t, h)
	h(nil, nil)
	assert.True(t, called)

	assert.Nil(t, s.HandlerFor(POST))
}

func TestSite_AddFilterKeepsPriorityOrder(t *testing.T) {
	s := &Site{}
	s.AddFilter(Filter{Priority: 5, Name: "c"})
	s.AddFilter(Filter{Priority: 1, Name: "a"})
	s.AddFilter(Filter{Priority: 3, Name: "b"})

	got := s.SortedFilters()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "c", got[2].Name)
}

func TestSite_HasChildren(t *testing.T) {
	parent := &Site{BasePath: "/app"}
	child := &Site{BasePath: "/app/sub", Parent: parent}
	other := &Site{BasePath: "/other"}

	all := []*Site{parent, child, other}
	assert.True(t, parent.HasChildren(all))
	assert.False(t, child.HasChildren(all))
	assert.False(t, other.HasChildren(all))
}
