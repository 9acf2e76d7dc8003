// Package common holds the domain enums and wire-level vocabulary shared
// across the connection core: registration status, bearer, context type,
// protocol and authentication method. Naming mirrors ofono's common.h.
package common

import "strings"

// RegStatus is the packet- or circuit-domain registration status.
type RegStatus int

const (
	RegStatusUnknown RegStatus = iota
	RegStatusNotRegistered
	RegStatusRegistered
	RegStatusSearching
	RegStatusDenied
	RegStatusRoaming
	RegStatusSMSEUTRAN
	RegStatusRoamingSMSEUTRAN
)

func (s RegStatus) String() string {
	switch s {
	case RegStatusNotRegistered:
		return "not-registered"
	case RegStatusRegistered:
		return "registered"
	case RegStatusSearching:
		return "searching"
	case RegStatusDenied:
		return "denied"
	case RegStatusRoaming:
		return "roaming"
	case RegStatusSMSEUTRAN:
		return "sms-eutran"
	case RegStatusRoamingSMSEUTRAN:
		return "roaming-sms-eutran"
	default:
		return "unknown"
	}
}

// Registered reports whether the status represents any flavour of
// network registration (home or roaming, full or SMS-only EUTRAN).
func (s RegStatus) Registered() bool {
	switch s {
	case RegStatusRegistered, RegStatusSMSEUTRAN, RegStatusRoaming, RegStatusRoamingSMSEUTRAN:
		return true
	default:
		return false
	}
}

// Roaming reports whether the status is one of the roaming variants.
func (s RegStatus) Roaming() bool {
	return s == RegStatusRoaming || s == RegStatusRoamingSMSEUTRAN
}

// IsLTEAccessTechnology classifies a +CGREG-style <AcT> code as one of
// the 3GPP E-UTRAN values (7: E-UTRAN, 9: E-UTRAN NB-S1), the signal
// the attach state machine uses to detect the LTE auto-attach world.
func IsLTEAccessTechnology(tech string) bool {
	return tech == "7" || tech == "9"
}

// Bearer is the radio technology currently carrying packet data.
type Bearer int

const (
	BearerNone Bearer = iota
	BearerGPRS
	BearerEDGE
	BearerUMTS
	BearerHSDPA
	BearerHSUPA
	BearerHSPA
	BearerLTE
)

func (b Bearer) String() string {
	switch b {
	case BearerGPRS:
		return "gprs"
	case BearerEDGE:
		return "edge"
	case BearerUMTS:
		return "umts"
	case BearerHSDPA:
		return "hsdpa"
	case BearerHSUPA:
		return "hsupa"
	case BearerHSPA:
		return "hspa"
	case BearerLTE:
		return "lte"
	default:
		return "none"
	}
}

// ContextType is the per-APN purpose, as used to match a PrimaryContext
// to a ContextDriverBinding.
type ContextType int

const (
	ContextTypeAny ContextType = iota
	ContextTypeInternet
	ContextTypeMMS
	ContextTypeWAP
	ContextTypeIMS
	ContextTypeSUPL
	ContextTypeIA
)

func (t ContextType) String() string {
	switch t {
	case ContextTypeInternet:
		return "internet"
	case ContextTypeMMS:
		return "mms"
	case ContextTypeWAP:
		return "wap"
	case ContextTypeIMS:
		return "ims"
	case ContextTypeSUPL:
		return "supl"
	case ContextTypeIA:
		return "ia"
	default:
		return ""
	}
}

// DefaultName returns the name assigned to a freshly created context of
// this type, matching gprs_context_default_name in the original source.
func (t ContextType) DefaultName() string {
	switch t {
	case ContextTypeInternet:
		return "Internet"
	case ContextTypeMMS:
		return "MMS"
	case ContextTypeWAP:
		return "WAP"
	case ContextTypeIMS:
		return "IMS"
	case ContextTypeSUPL:
		return "SUPL"
	case ContextTypeIA:
		return "Initial Attach"
	default:
		return ""
	}
}

// ParseContextType parses the bus-visible lowercase string form.
func ParseContextType(s string) (ContextType, bool) {
	switch strings.ToLower(s) {
	case "internet":
		return ContextTypeInternet, true
	case "mms":
		return ContextTypeMMS, true
	case "wap":
		return ContextTypeWAP, true
	case "ims":
		return ContextTypeIMS, true
	case "supl":
		return ContextTypeSUPL, true
	case "ia":
		return ContextTypeIA, true
	default:
		return ContextTypeAny, false
	}
}

// Proto is the requested IP protocol family for a context.
type Proto int

const (
	ProtoIP Proto = iota
	ProtoIPv6
	ProtoIPv4v6
)

func (p Proto) String() string {
	switch p {
	case ProtoIPv6:
		return "ipv6"
	case ProtoIPv4v6:
		return "ipv4v6"
	default:
		return "ip"
	}
}

func (p Proto) WantsIPv4() bool { return p == ProtoIP || p == ProtoIPv4v6 }
func (p Proto) WantsIPv6() bool { return p == ProtoIPv6 || p == ProtoIPv4v6 }

// ParseProto parses the bus-visible lowercase string form.
func ParseProto(s string) (Proto, bool) {
	switch strings.ToLower(s) {
	case "ip":
		return ProtoIP, true
	case "ipv6":
		return ProtoIPv6, true
	case "ipv4v6":
		return ProtoIPv4v6, true
	default:
		return ProtoIP, false
	}
}

// AuthMethod is the PAP/CHAP negotiation mode for a context.
type AuthMethod int

const (
	AuthCHAP AuthMethod = iota
	AuthPAP
	AuthNone
)

func (a AuthMethod) String() string {
	switch a {
	case AuthPAP:
		return "pap"
	case AuthNone:
		return "none"
	default:
		return "chap"
	}
}

// ParseAuthMethod parses the bus-visible lowercase string form.
func ParseAuthMethod(s string) (AuthMethod, bool) {
	switch strings.ToLower(s) {
	case "chap":
		return AuthCHAP, true
	case "pap":
		return AuthPAP, true
	case "none":
		return AuthNone, true
	default:
		return AuthCHAP, false
	}
}

// SuspendCause is the reason a suspend_notify callback was raised.
type SuspendCause int

const (
	SuspendCauseUnknown SuspendCause = iota
	SuspendCauseDetached
	SuspendCauseCall
	SuspendCauseNoCoverage
	SuspendCauseSignalling
)

// Immediate reports whether the cause suspends packet service without
// the 8s debounce (detached, call, no-coverage all are; signalling and
// unknown cause arm the timer instead).
func (c SuspendCause) Immediate() bool {
	switch c {
	case SuspendCauseDetached, SuspendCauseCall, SuspendCauseNoCoverage:
		return true
	default:
		return false
	}
}
