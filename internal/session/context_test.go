package session

import (
	"testing"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextDefaults(t *testing.T) {
	ctx := NewContext()
	require.NotNil(t, ctx.GetSession())
	require.NotNil(t, ctx.GetSite())
	assert.Zero(t, ctx.GetSession().ID)
	assert.Equal(t, "No site loaded", ctx.GetSite().Name)
}

func TestSetAndClear(t *testing.T) {
	ctx := NewContext()

	session := &core.Session{ID: 7, SessionKey: "abcd"}
	site := &core.SiteModel{Name: "North Tower"}
	ctx.SetSession(session, site)

	assert.Equal(t, uint(7), ctx.GetSession().ID)
	assert.Equal(t, "North Tower", ctx.GetSite().Name)

	ctx.Clear()
	assert.Zero(t, ctx.GetSession().ID)
	assert.Equal(t, "No site loaded", ctx.GetSite().Name)
}
