package pdpcontext

import (
	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
)

// Properties is the bus-visible property set for a ConnectionContext
// object. Settings/IPv6Settings are nil unless active.
type Properties struct {
	Name          string
	Active        bool
	Type          string
	Protocol      string
	AccessPointName string
	Username      string
	Password      string
	AuthenticationMethod string
	MessageProxy  string
	MessageCenter string
	Settings      *contextdriver.IPv4Settings
	IPv6Settings  *contextdriver.IPv6Settings
}

// GetProperties renders the current Context state into the bus dict
// shape.
func (c *Context) GetProperties() Properties {
	p := Properties{
		Name:                 c.Name,
		Active:               c.Active(),
		Type:                 c.typ.String(),
		Protocol:             c.Proto.String(),
		AccessPointName:      c.APN,
		Username:             c.Username,
		Password:             c.Password,
		AuthenticationMethod: c.AuthMethod.String(),
	}
	if c.typ == common.ContextTypeMMS {
		p.MessageProxy = c.MessageProxy
		p.MessageCenter = c.MessageCenter
	}
	if c.binding != nil && c.Active() {
		s := c.binding.CurrentSettings()
		if c.typ == common.ContextTypeMMS {
			s = c.mmsOverrideSettings(s)
		}
		p.Settings = s.IPv4
		p.IPv6Settings = s.IPv6
	}
	return p
}
