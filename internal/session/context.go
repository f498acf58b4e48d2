// Package session holds the process-wide current session state shared by the
// recorder, the status monitor and the upload client.
package session

import (
	"sync"

	"github.com/sitetrace/extension/pkg/core"
)

// Context holds the current session and site state
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	site    *core.SiteModel
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		session: &core.Session{},
		site:    &core.SiteModel{Name: "No site loaded"},
	}
}

// GetSession returns the current session
func (c *Context) GetSession() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// GetSite returns the current site
func (c *Context) GetSite() *core.SiteModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.site
}

// SetSession sets the current session and site
func (c *Context) SetSession(session *core.Session, site *core.SiteModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.site = site
}

// Clear resets the context after a session ends.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &core.Session{}
	c.site = &core.SiteModel{Name: "No site loaded"}
}
