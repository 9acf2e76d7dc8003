package pdpcontext

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ofono-connman/connmand/common"
)

const (
	maxNameLength          = 127
	maxAPNLength           = 100
	maxUserLength          = 63
	maxMessageProxyLength  = 255
	maxMessageCenterLength = 255
)

// apnPattern is the standard APN character class: letters, digits, '-'
// and '.' as label separators (RFC-ish access point naming).
var apnPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)*$`)

// ValidateAPN enforces the access point naming rules: printable, length-bounded, the
// standard APN character class. Empty is allowed only by the caller's
// "freshly created or provisioning-failed stub" path, signalled via
// allowEmpty; ValidateAPN itself is idempotent and stateless.
func ValidateAPN(apn string, allowEmpty bool) error {
	if apn == "" {
		if allowEmpty {
			return nil
		}
		return common.NewError(common.ErrInvalidFormat, "empty access point name")
	}
	if len(apn) > maxAPNLength {
		return common.NewError(common.ErrInvalidFormat, "access point name exceeds %d characters", maxAPNLength)
	}
	if !apnPattern.MatchString(apn) {
		return common.NewError(common.ErrInvalidFormat, "access point name %q is not a valid APN", apn)
	}
	return nil
}

// ValidateName enforces the ≤127 char bound on the user-visible Name
// property.
func ValidateName(name string) error {
	if len(name) > maxNameLength {
		return common.NewError(common.ErrInvalidFormat, "name exceeds %d characters", maxNameLength)
	}
	return nil
}

// ValidateCredential enforces the ≤63 char bound shared by Username and
// Password.
func ValidateCredential(v string) error {
	if len(v) > maxUserLength {
		return common.NewError(common.ErrInvalidFormat, "value exceeds %d characters", maxUserLength)
	}
	return nil
}

// ValidateMessageProxy enforces the ≤255 char bound.
func ValidateMessageProxy(v string) error {
	if len(v) > maxMessageProxyLength {
		return common.NewError(common.ErrInvalidFormat, "message proxy exceeds %d characters", maxMessageProxyLength)
	}
	return nil
}

// ValidateMessageCenter enforces the ≤255 char bound.
func ValidateMessageCenter(v string) error {
	if len(v) > maxMessageCenterLength {
		return common.NewError(common.ErrInvalidFormat, "message center exceeds %d characters", maxMessageCenterLength)
	}
	return nil
}

// ParsedProxy is the host/port extracted from a MessageProxy string of
// the form "[scheme://]host[:port][/path]".
type ParsedProxy struct {
	Host string
	Port uint16
}

// ParseProxy parses a MessageProxy value, defaulting the port to 80 (or
// 443 for an explicit https scheme) when none is given.
func ParseProxy(proxy string) (ParsedProxy, error) {
	if proxy == "" {
		return ParsedProxy{}, nil
	}

	raw := proxy
	defaultPort := uint16(80)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ParsedProxy{}, common.NewError(common.ErrInvalidFormat, "invalid proxy %q: %v", proxy, err)
		}
		if u.Scheme == "https" {
			defaultPort = 443
		}
		raw = u.Host
		if raw == "" {
			return ParsedProxy{}, common.NewError(common.ErrInvalidFormat, "invalid proxy %q: missing host", proxy)
		}
	} else if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}

	host := raw
	port := defaultPort
	if h, p, err := splitHostPort(raw); err == nil {
		host, port = h, p
	}
	if host == "" {
		return ParsedProxy{}, common.NewError(common.ErrInvalidFormat, "invalid proxy %q: missing host", proxy)
	}
	return ParsedProxy{Host: host, Port: port}, nil
}

func splitHostPort(raw string) (string, uint16, error) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return raw, 0, fmt.Errorf("no port")
	}
	host := raw[:idx]
	portStr := raw[idx+1:]
	n, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return raw, 0, err
	}
	return host, uint16(n), nil
}
