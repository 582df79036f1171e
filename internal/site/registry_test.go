package site

import (
	"testing"

	"github.com/edwig/marlin/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndFindExact(t *testing.T) {
	r := NewRegistry()
	s := &domain.Site{Port: 8080, BasePath: "/app"}
	require.NoError(t, r.Register(8080, "/app", s))

	got := r.Find(8080, "/app", nil)
	assert.Same(t, s, got)
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	s := &domain.Site{Port: 80, BasePath: "/x"}
	require.NoError(t, r.Register(80, "/x", s))

	err := r.Register(80, "/x", &domain.Site{})
	assert.ErrorIs(t, err, domain.ErrSiteAlreadyExists)
}

func TestRegistry_LongestPrefixLookup(t *testing.T) {
	r := NewRegistry()
	app := &domain.Site{Port: 80, BasePath: "/app"}
	require.NoError(t, r.Register(80, "/app", app))

	got := r.Find(80, "/app/widgets/42", nil)
	assert.Same(t, app, got)
}

func TestRegistry_NoMatchReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Find(80, "/nothing/here", nil))
}

func TestRegistry_SubSiteResolvesToParentHintMismatch(t *testing.T) {
	r := NewRegistry()
	parent := &domain.Site{Port: 80, BasePath: "/app"}
	other := &domain.Site{Port: 80, BasePath: "/app/sub"} // no Parent link
	require.NoError(t, r.Register(80, "/app/sub", other))

	got := r.Find(80, "/app/sub/x", parent)
	assert.Same(t, parent, got)
}

func TestRegistry_UnregisterFailsWithChildren(t *testing.T) {
	r := NewRegistry()
	parent := &domain.Site{Port: 80, BasePath: "/app"}
	child := &domain.Site{Port: 80, BasePath: "/app/sub", Parent: parent}
	require.NoError(t, r.Register(80, "/app", parent))
	require.NoError(t, r.Register(80, "/app/sub", child))

	err := r.Unregister(80, "/app", false)
	assert.ErrorIs(t, err, domain.ErrSiteHasChildren)

	require.NoError(t, r.Unregister(80, "/app", true))
	assert.Nil(t, r.Find(80, "/app", nil))
}

func TestRegistry_UnregisterNotFound(t *testing.T) {
	r := NewRegistry()
	err := r.Unregister(80, "/missing", false)
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}
