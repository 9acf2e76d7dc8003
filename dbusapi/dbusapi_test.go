package dbusapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/pdpcontext"
)

func TestPropsToDictInternetContext(t *testing.T) {
	p := pdpcontext.Properties{
		Name:            "internet",
		Active:          true,
		Type:            common.ContextTypeInternet.String(),
		Protocol:        common.ProtoIP.String(),
		AccessPointName: "internet.op.com",
	}

	dict := propsToDict(p)

	assert.Equal(t, "internet", dict["Name"].Value())
	assert.Equal(t, true, dict["Active"].Value())
	_, hasMessageProxy := dict["MessageProxy"]
	assert.False(t, hasMessageProxy, "MessageProxy should be absent for a non-MMS context")
	_, hasSettings := dict["Settings"]
	assert.False(t, hasSettings, "Settings should be absent while no IPv4Settings are attached")
}

func TestPropsToDictMMSContextIncludesMessageFields(t *testing.T) {
	p := pdpcontext.Properties{
		Name:          "mms",
		Type:          common.ContextTypeMMS.String(),
		MessageProxy:  "mmsc.op.com",
		MessageCenter: "http://mmsc.op.com/mms",
	}

	dict := propsToDict(p)

	require.Contains(t, dict, "MessageProxy")
	require.Contains(t, dict, "MessageCenter")
	assert.Equal(t, "mmsc.op.com", dict["MessageProxy"].Value())
}

func TestIPv4DictStaticSettings(t *testing.T) {
	s := &contextdriver.IPv4Settings{
		Interface: "wwan0",
		Method:    "static",
		Address:   "10.0.0.2",
		Netmask:   "255.255.255.0",
		Gateway:   "10.0.0.1",
		DNS:       []string{"8.8.8.8"},
	}

	dict := ipv4Dict(s)

	assert.Equal(t, "static", dict["Method"].Value())
	assert.Equal(t, "10.0.0.2", dict["Address"].Value())
	_, hasProxy := dict["Proxy"]
	assert.False(t, hasProxy)
}

func TestIPv4DictMMSProxyOverrideOmitsMethodAndAddress(t *testing.T) {
	s := &contextdriver.IPv4Settings{
		Interface: "wwan0",
		Proxy:     "http://mmsc.op.com:8080/x",
	}

	dict := ipv4Dict(s)

	assert.Equal(t, "http://mmsc.op.com:8080/x", dict["Proxy"].Value())
	_, hasMethod := dict["Method"]
	assert.False(t, hasMethod, "a Proxy override replaces Method/Address entirely")
	_, hasAddress := dict["Address"]
	assert.False(t, hasAddress)
}

func TestIPv6Dict(t *testing.T) {
	s := &contextdriver.IPv6Settings{
		Interface:    "wwan0",
		Address:      "2001:db8::1",
		PrefixLength: 64,
		Gateway:      "2001:db8::",
		DNS:          []string{"2001:4860:4860::8888"},
	}

	dict := ipv6Dict(s)

	assert.Equal(t, "2001:db8::1", dict["Address"].Value())
	assert.Equal(t, uint8(64), dict["PrefixLength"].Value())
}

func TestKindToNameCoversEveryErrorKind(t *testing.T) {
	cases := map[common.ErrorKind]string{
		common.ErrInvalidArgs:     "InvalidArguments",
		common.ErrInvalidFormat:   "InvalidFormat",
		common.ErrNotFound:        "NotFound",
		common.ErrNotAttached:     "NotAttached",
		common.ErrAttachInProcess: "AttachInProgress",
		common.ErrBusy:            "InProgress",
		common.ErrInUse:           "InUse",
		common.ErrNotAllowed:      "NotAllowed",
		common.ErrNotImplemented:  "NotImplemented",
		common.ErrFailed:          "Failed",
		common.ErrorKind("bogus"): "Failed",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kindToName(kind), "kind %q", kind)
	}
}

func TestToDBusErrorPrefixesAndPreservesMessage(t *testing.T) {
	err := common.NewError(common.ErrNotFound, "no such context")

	busErr := toDBusError(err)

	assert.Equal(t, "org.ofono.connman.Error.NotFound", busErr.Name)
	require.Len(t, busErr.Body, 1)
	assert.Equal(t, "not-found: no such context", busErr.Body[0])
}
