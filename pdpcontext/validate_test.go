package pdpcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPN(t *testing.T) {
	require.NoError(t, ValidateAPN("internet", false))
	require.NoError(t, ValidateAPN("ims.ims.mnc001.mcc001.gprs", false))
	require.Error(t, ValidateAPN("", false))
	require.NoError(t, ValidateAPN("", true))
	require.Error(t, ValidateAPN("bad apn!", false))
	require.Error(t, ValidateAPN(string(make([]byte, 200)), false))
}

func TestValidateAPNIdempotent(t *testing.T) {
	apn := "internet.example"
	err1 := ValidateAPN(apn, false)
	err2 := ValidateAPN(apn, false)
	assert.Equal(t, err1, err2)
}

func TestParseProxy(t *testing.T) {
	p, err := ParseProxy("http://mmsc.op.com:8080/x")
	require.NoError(t, err)
	assert.Equal(t, "mmsc.op.com", p.Host)
	assert.EqualValues(t, 8080, p.Port)

	p2, err := ParseProxy("mmsc.op.com")
	require.NoError(t, err)
	assert.Equal(t, "mmsc.op.com", p2.Host)
	assert.EqualValues(t, 80, p2.Port)

	p3, err := ParseProxy("https://secure.op.com/path")
	require.NoError(t, err)
	assert.Equal(t, "secure.op.com", p3.Host)
	assert.EqualValues(t, 443, p3.Port)

	p4, err := ParseProxy("")
	require.NoError(t, err)
	assert.Empty(t, p4.Host)
}
