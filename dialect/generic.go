package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/logging"
	"github.com/ofono-connman/connmand/transport"
)

// Generic implements Dialect over the common semantic protocol, pinning
// only the semantics and not the exact wire commands. Wire framing below
// is modelled on ofono's atmodem driver
// (AT+CGATT, +CGREG:, +CGEV:, AT+CGACT, AT+CGDCONT) but any transport
// that speaks the same prefixes works. Probe subscribes to +CGREG and
// +CGEV only: the bearerMap field is not consulted, and Generic never
// calls the Observer's BearerChanged, Suspended or Resumed.
type Generic struct {
	vendor Vendor
	ch     transport.Channel
	obs    Observer
	log    zerolog.Logger

	bearerMap func(code string) common.Bearer

	mu                 sync.Mutex
	cidMin, cidMax     uint8
	lastAutoContextID  int
	spuriousReattached bool // quirk state: one silent re-attach per spurious detach
	attached           bool

	unregister []func()
}

// NewGeneric builds a Generic dialect for the given vendor over ch. A
// nil bearerMap falls back to the 3GPP-common codes used by most AT
// modems.
func NewGeneric(vendor Vendor, ch transport.Channel, obs Observer, bearerMap func(string) common.Bearer) *Generic {
	if bearerMap == nil {
		bearerMap = defaultBearerMap
	}
	return &Generic{
		vendor:            vendor,
		ch:                ch,
		obs:               obs,
		log:               logging.For("dialect").With().Str("vendor", vendor.String()).Logger(),
		bearerMap:         bearerMap,
		lastAutoContextID: -1,
	}
}

func (g *Generic) Vendor() Vendor { return g.vendor }

// Probe negotiates context-ID range / PDP types, registration and event
// report modes, and subscribes notification handlers.
func (g *Generic) Probe(ctx context.Context) error {
	cgdcontRange, err := g.queryCIDRange(ctx)
	if err != nil {
		return common.Wrap(common.ErrFailed, err, "packet service not supported")
	}
	g.mu.Lock()
	g.cidMin, g.cidMax = cgdcontRange[0], cgdcontRange[1]
	g.mu.Unlock()

	if err := g.configureRegistrationReporting(ctx); err != nil {
		g.log.Warn().Err(err).Msg("registration report mode negotiation degraded")
	}
	if err := g.configureEventReporting(ctx); err != nil {
		g.log.Warn().Err(err).Msg("event report mode negotiation degraded")
	}
	g.disableAutoAnswer(ctx)
	g.subscribe()
	return nil
}

func (g *Generic) queryCIDRange(ctx context.Context) ([2]uint8, error) {
	result := make(chan transport.Response, 1)
	g.ch.Send(ctx, "AT+CGDCONT=?", "+CGDCONT:", func(r transport.Response) { result <- r })
	r := <-result
	if r.Err != nil || !r.OK {
		return [2]uint8{}, fmt.Errorf("no IPv4-capable PDP type advertised")
	}
	// A real wire driver parses "(1-11),\"IP\",..." out of r.Lines; the
	// semantic contract only requires a contiguous 1..N range and at
	// least one IPv4-capable type, which we default to when the probe
	// response doesn't carry an explicit range.
	min, max := uint8(1), uint8(11)
	for _, line := range r.Lines {
		if lo, hi, ok := parseCIDRangeLine(line); ok {
			min, max = lo, hi
		}
	}
	return [2]uint8{min, max}, nil
}

func parseCIDRangeLine(line string) (uint8, uint8, bool) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "+CGDCONT:")
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "()")
	parts := strings.SplitN(line, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(strings.SplitN(parts[1], ",", 2)[0]))
	if err1 != nil || err2 != nil || lo < 1 || hi < lo || hi > 255 {
		return 0, 0, false
	}
	return uint8(lo), uint8(hi), true
}

func (g *Generic) configureRegistrationReporting(ctx context.Context) error {
	// Richest-first: full location (+CGREG=2) > basic (+CGREG=1) > none.
	for _, mode := range []string{"AT+CGREG=2", "AT+CGREG=1"} {
		done := make(chan transport.Response, 1)
		g.ch.Send(ctx, mode, "", func(r transport.Response) { done <- r })
		if r := <-done; r.OK {
			return nil
		}
	}
	return fmt.Errorf("no registration report mode accepted")
}

func (g *Generic) configureEventReporting(ctx context.Context) error {
	// Some vendors only accept a single-argument CGEREP, or reject
	// particular (mode, bfr) combinations outright; try richest first
	// and tolerate rejection.
	for _, mode := range []string{"AT+CGEREP=2,1", "AT+CGEREP=1,0", "AT+CGEREP=1"} {
		done := make(chan transport.Response, 1)
		g.ch.Send(ctx, mode, "", func(r transport.Response) { done <- r })
		if r := <-done; r.OK {
			return nil
		}
	}
	return fmt.Errorf("no event report mode accepted")
}

func (g *Generic) disableAutoAnswer(ctx context.Context) {
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, "AT+CGAUTO=0", "", func(r transport.Response) { done <- r })
	<-done // best-effort; not every modem implements this
}

func (g *Generic) subscribe() {
	g.unregister = append(g.unregister,
		g.ch.Register("+CGREG:", g.onRegistration),
		g.ch.Register("+CGEV:", g.onPacketEvent),
	)
}

func (g *Generic) CIDRange() (uint8, uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cidMin, g.cidMax
}

func (g *Generic) SetAttached(ctx context.Context, attach bool) error {
	cmd := "AT+CGATT=0"
	if attach {
		cmd = "AT+CGATT=1"
	}
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, cmd, "", func(r transport.Response) { done <- r })
	r := <-done
	if r.Err != nil || !r.OK {
		return common.DriverError{Kind: common.ErrFailed}
	}
	g.mu.Lock()
	g.attached = attach
	g.mu.Unlock()
	return nil
}

func (g *Generic) AttachedStatus(ctx context.Context) (common.RegStatus, error) {
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, "AT+CGREG?", "+CGREG:", func(r transport.Response) { done <- r })
	r := <-done
	if r.Err != nil || !r.OK || len(r.Lines) == 0 {
		return common.RegStatusUnknown, common.DriverError{Kind: common.ErrFailed}
	}
	status, _, _, _, _ := parseCGREG(r.Lines[0])
	return status, nil
}

func (g *Generic) ListActiveContexts(ctx context.Context) ([]uint8, error) {
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, "AT+CGACT?", "+CGACT:", func(r transport.Response) { done <- r })
	r := <-done
	if r.Err != nil || !r.OK {
		return nil, common.DriverError{Kind: common.ErrFailed}
	}
	var active []uint8
	for _, line := range r.Lines {
		if cid, state, ok := parseCGACTLine(line); ok && state {
			active = append(active, cid)
		}
	}
	return active, nil
}

func parseCGACTLine(line string) (uint8, bool, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+CGACT:"))
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return 0, false, false
	}
	cid, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	state, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, false, false
	}
	return uint8(cid), state == 1, true
}

func (g *Generic) ActivatePrimary(ctx context.Context, req ActivateRequest) (Settings, error) {
	defCmd := fmt.Sprintf("AT+CGDCONT=%d,%q,%q", req.CID, protoToPDPType(req.Proto), req.APN)
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, defCmd, "", func(r transport.Response) { done <- r })
	if r := <-done; r.Err != nil || !r.OK {
		return Settings{}, common.DriverError{Kind: common.ErrFailed}
	}

	actCmd := fmt.Sprintf("AT+CGACT=1,%d", req.CID)
	done2 := make(chan transport.Response, 1)
	g.ch.Send(ctx, actCmd, "", func(r transport.Response) { done2 <- r })
	r := <-done2
	if r.Err != nil || !r.OK {
		return Settings{}, common.DriverError{Kind: common.ErrFailed}
	}

	return g.ReadSettings(ctx, req.CID)
}

func (g *Generic) DeactivatePrimary(ctx context.Context, cid uint8) error {
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, fmt.Sprintf("AT+CGACT=0,%d", cid), "", func(r transport.Response) { done <- r })
	r := <-done
	if r.Err != nil || !r.OK {
		return common.DriverError{Kind: common.ErrFailed}
	}
	return nil
}

func (g *Generic) ReadSettings(ctx context.Context, cid uint8) (Settings, error) {
	done := make(chan transport.Response, 1)
	g.ch.Send(ctx, fmt.Sprintf("AT+CGCONTRDP=%d", cid), "+CGCONTRDP:", func(r transport.Response) { done <- r })
	r := <-done
	if r.Err != nil || !r.OK || len(r.Lines) == 0 {
		return Settings{}, common.DriverError{Kind: common.ErrNotImplemented}
	}
	return parseCGCONTRDP(r.Lines[0]), nil
}

func (g *Generic) DetachShutdown(ctx context.Context, cid uint8) error {
	return g.DeactivatePrimary(ctx, cid)
}

func (g *Generic) HasReadSettings() bool   { return true }
func (g *Generic) HasDetachShutdown() bool { return true }

func (g *Generic) onRegistration(line string) {
	status, lac, ci, tech, unsolicited := parseCGREG(line)
	if !unsolicited {
		return
	}

	// Spurious-detach quirk: some modems emit a detach and
	// later a delayed re-register; issue one silent re-attach between
	// them, and ignore a second occurrence without intervening user
	// action (tracked via spuriousReattached).
	g.mu.Lock()
	wasAttached := g.attached
	g.mu.Unlock()

	if status == common.RegStatusNotRegistered && wasAttached {
		g.mu.Lock()
		already := g.spuriousReattached
		g.mu.Unlock()
		if !already {
			g.mu.Lock()
			g.spuriousReattached = true
			g.mu.Unlock()
			g.log.Info().Msg("spurious detach observed, issuing silent re-attach")
			done := make(chan transport.Response, 1)
			g.ch.Send(context.Background(), "AT+CGATT=1", "", func(r transport.Response) { done <- r })
			go func() { <-done }()
			return
		}
		g.log.Debug().Msg("repeated spurious detach ignored, quirk already applied this session")
		return
	}
	g.mu.Lock()
	g.spuriousReattached = false
	g.mu.Unlock()

	g.obs.RegistrationStatusChanged(status, lac, ci, tech)
}

func (g *Generic) onPacketEvent(line string) {
	event := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+CGEV:"))
	switch {
	case event == "NW DETACH" || event == "ME DETACH":
		g.mu.Lock()
		quirkPending := g.spuriousReattached
		g.mu.Unlock()
		if quirkPending {
			return
		}
		g.mu.Lock()
		g.attached = false
		g.mu.Unlock()
		g.obs.Detached()
	case strings.HasPrefix(event, "ME PDN ACT"):
		cid := lastField(event)
		g.mu.Lock()
		g.lastAutoContextID = cid
		g.mu.Unlock()
		apn := g.readAPNForCID(cid)
		g.obs.ContextAutoActivated(uint8(cid), apn)
	case strings.HasPrefix(event, "ME PDN DEACT"):
		cid := lastField(event)
		g.mu.Lock()
		if g.lastAutoContextID == cid {
			g.lastAutoContextID = -1
		}
		g.mu.Unlock()
		g.obs.ContextAutoDeactivated(uint8(cid))
	}
}

func (g *Generic) readAPNForCID(cid int) string {
	done := make(chan transport.Response, 1)
	g.ch.Send(context.Background(), "AT+CGDCONT?", "+CGDCONT:", func(r transport.Response) { done <- r })
	r := <-done
	for _, line := range r.Lines {
		if c, apn, ok := parseCGDCONTLine(line); ok && c == cid {
			return apn
		}
	}
	return ""
}

func lastField(event string) int {
	fields := strings.Fields(event)
	if len(fields) == 0 {
		return -1
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return -1
	}
	return n
}

func parseCGDCONTLine(line string) (int, string, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+CGDCONT:"))
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return 0, "", false
	}
	cid, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, "", false
	}
	apn := strings.Trim(strings.TrimSpace(parts[2]), "\"")
	return cid, apn, true
}

// parseCGREG returns (status, lac, ci, tech, isUnsolicited). Both forms
// may carry lac, ci and tech after the status; a query response echoes
// the report mode first.
func parseCGREG(line string) (status common.RegStatus, lac, ci int, tech string, unsolicited bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+CGREG:"))
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	// Query form: "<mode>,<status>[,\"lac\",\"ci\"[,<tech>]]"
	// Unsolicited form: "<status>[,\"lac\",\"ci\"[,<tech>]]"
	var statusIdx int
	unsolicited = len(parts) == 1 || !isModeDigit(parts[0]) || strings.HasPrefix(parts[1], "\"")
	if !unsolicited {
		statusIdx = 1
	}
	if statusIdx >= len(parts) {
		return common.RegStatusUnknown, 0, 0, "", unsolicited
	}
	code, err := strconv.Atoi(parts[statusIdx])
	if err != nil {
		return common.RegStatusUnknown, 0, 0, "", unsolicited
	}
	status = cgregCodeToStatus(code)
	if len(parts) > statusIdx+2 {
		lac = hexOrZero(strings.Trim(parts[statusIdx+1], "\""))
		ci = hexOrZero(strings.Trim(parts[statusIdx+2], "\""))
	}
	if len(parts) > statusIdx+3 {
		tech = strings.Trim(parts[statusIdx+3], "\"")
	}
	return status, lac, ci, tech, unsolicited
}

func isModeDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '2'
}

func hexOrZero(s string) int {
	n, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}

func cgregCodeToStatus(code int) common.RegStatus {
	switch code {
	case 0:
		return common.RegStatusNotRegistered
	case 1:
		return common.RegStatusRegistered
	case 2:
		return common.RegStatusSearching
	case 3:
		return common.RegStatusDenied
	case 5:
		return common.RegStatusRoaming
	case 9:
		return common.RegStatusSMSEUTRAN
	case 10:
		return common.RegStatusRoamingSMSEUTRAN
	default:
		return common.RegStatusUnknown
	}
}

func protoToPDPType(p common.Proto) string {
	switch p {
	case common.ProtoIPv6:
		return "IPV6"
	case common.ProtoIPv4v6:
		return "IPV4V6"
	default:
		return "IP"
	}
}

func parseCGCONTRDP(line string) Settings {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+CGCONTRDP:"))
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), "\"")
	}
	// cid, bearer_id, apn, local_addr_and_subnet_mask, gw_addr, dns_prim, dns_sec, ...
	s := Settings{IPv4: &IPv4Settings{Static: true}}
	if len(parts) > 3 {
		s.IPv4.Address = firstField(parts[3])
		s.IPv4.Netmask = secondFieldOr(parts[3], "255.255.255.0")
	}
	if len(parts) > 4 {
		s.IPv4.Gateway = parts[4]
	}
	if len(parts) > 5 && parts[5] != "" {
		s.IPv4.DNS = append(s.IPv4.DNS, parts[5])
	}
	if len(parts) > 6 && parts[6] != "" {
		s.IPv4.DNS = append(s.IPv4.DNS, parts[6])
	}
	return s
}

func firstField(addrAndMask string) string {
	fields := strings.Fields(addrAndMask)
	if len(fields) == 0 {
		return addrAndMask
	}
	return fields[0]
}

func secondFieldOr(addrAndMask, def string) string {
	fields := strings.Fields(addrAndMask)
	if len(fields) < 2 {
		return def
	}
	return fields[1]
}

// defaultBearerMap maps 3GPP-common +CGEV/+CREG access-technology codes
// onto the common Bearer enum; unknown inputs map to BearerNone, so the
// mapping is total for every valid input and zero otherwise.
func defaultBearerMap(code string) common.Bearer {
	switch code {
	case "0":
		return common.BearerGPRS
	case "1":
		return common.BearerGPRS
	case "2":
		return common.BearerUMTS
	case "3":
		return common.BearerEDGE
	case "4":
		return common.BearerHSDPA
	case "5":
		return common.BearerHSUPA
	case "6":
		return common.BearerHSPA
	case "7":
		return common.BearerLTE
	default:
		return common.BearerNone
	}
}
