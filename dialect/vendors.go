package dialect

import (
	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/transport"
)

// Per-vendor bearer translation tables. Each vendor maps its own
// ^SYSINFO/^HCSQ/+QNWINFO-style status codes onto the common Bearer
// enum; codes outside the table map to BearerNone.

func quectelBearerMap(code string) common.Bearer {
	switch code {
	case "GSM", "GPRS":
		return common.BearerGPRS
	case "EDGE":
		return common.BearerEDGE
	case "WCDMA", "UMTS":
		return common.BearerUMTS
	case "HSDPA":
		return common.BearerHSDPA
	case "HSUPA":
		return common.BearerHSUPA
	case "HSPA", "HSPA+":
		return common.BearerHSPA
	case "LTE":
		return common.BearerLTE
	default:
		return common.BearerNone
	}
}

func ubloxBearerMap(code string) common.Bearer {
	switch code {
	case "2":
		return common.BearerGPRS
	case "3":
		return common.BearerEDGE
	case "4", "5":
		return common.BearerUMTS
	case "6":
		return common.BearerHSDPA
	case "7":
		return common.BearerHSUPA
	case "8":
		return common.BearerHSPA
	case "9":
		return common.BearerLTE
	default:
		return common.BearerNone
	}
}

// NewForVendor constructs the Dialect for a named vendor over ch. An
// unrecognised name falls back to VendorGeneric with the 3GPP-common
// bearer table, added by extending the vendor tag.
func NewForVendor(name string, ch transport.Channel, obs Observer) Dialect {
	switch name {
	case "quectel":
		return NewGeneric(VendorQuectel, ch, obs, quectelBearerMap)
	case "ublox":
		return NewGeneric(VendorUBlox, ch, obs, ubloxBearerMap)
	default:
		return NewGeneric(VendorGeneric, ch, obs, defaultBearerMap)
	}
}
