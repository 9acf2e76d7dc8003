package dialect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/transport"
)

type recordingObserver struct {
	registrations []common.RegStatus
	detaches      int
	autoActivated []uint8
}

func (r *recordingObserver) RegistrationStatusChanged(status common.RegStatus, _ int, _ int, _ string) {
	r.registrations = append(r.registrations, status)
}
func (r *recordingObserver) BearerChanged(common.Bearer)          {}
func (r *recordingObserver) Suspended(common.SuspendCause)        {}
func (r *recordingObserver) Resumed()                             {}
func (r *recordingObserver) ContextAutoActivated(cid uint8, apn string) {
	r.autoActivated = append(r.autoActivated, cid)
}
func (r *recordingObserver) ContextAutoDeactivated(uint8) {}
func (r *recordingObserver) Detached()                    { r.detaches++ }

func TestProbeNegotiatesCIDRangeAndReporting(t *testing.T) {
	ch := transport.NewFake()
	ch.Expect("AT+CGDCONT=?", transport.Response{OK: true, Lines: []string{"+CGDCONT: (1-11),\"IP\",,,0,0"}})
	ch.Expect("AT+CGREG=2", transport.Response{OK: true})
	ch.Expect("AT+CGEREP=2,1", transport.Response{OK: true})

	obs := &recordingObserver{}
	d := NewGeneric(VendorGeneric, ch, obs, nil)
	require.NoError(t, d.Probe(context.Background()))

	lo, hi := d.CIDRange()
	assert.Equal(t, uint8(1), lo)
	assert.Equal(t, uint8(11), hi)
}

func TestSpuriousDetachQuirkFiresOnceThenIgnored(t *testing.T) {
	ch := transport.NewFake()
	obs := &recordingObserver{}
	d := NewGeneric(VendorGeneric, ch, obs, nil)
	d.attached = true

	// First spurious detach: +CGREG goes to 0 then +CGEV: NW DETACH in
	// the same burst. The quirk issues one silent AT+CGATT=1 and
	// suppresses the Detached() callback for this occurrence.
	d.onRegistration("+CGREG: 0")
	d.onPacketEvent("+CGEV: NW DETACH")
	assert.Equal(t, 0, obs.detaches, "first spurious detach must not surface Detached()")
	assert.Contains(t, ch.Sent, "AT+CGATT=1")

	sentBefore := len(ch.Sent)

	// A second identical spurious detach without an intervening
	// registration recovery must not re-issue the silent re-attach.
	d.onRegistration("+CGREG: 0")
	d.onPacketEvent("+CGEV: NW DETACH")
	assert.Equal(t, sentBefore, len(ch.Sent), "second spurious detach in the same session must not re-attach")
}

func TestRegistrationRecoveryClearsQuirkState(t *testing.T) {
	ch := transport.NewFake()
	obs := &recordingObserver{}
	d := NewGeneric(VendorGeneric, ch, obs, nil)
	d.attached = true

	d.onRegistration("+CGREG: 0")
	d.onPacketEvent("+CGEV: NW DETACH")
	assert.True(t, d.spuriousReattached)

	d.onRegistration("+CGREG: 1")
	assert.False(t, d.spuriousReattached)
	require.Len(t, obs.registrations, 1)
	assert.Equal(t, common.RegStatusRegistered, obs.registrations[0])
}

func TestGenuineDetachSurfacesWithoutPriorQuirk(t *testing.T) {
	ch := transport.NewFake()
	obs := &recordingObserver{}
	d := NewGeneric(VendorGeneric, ch, obs, nil)
	d.attached = true

	d.onPacketEvent("+CGEV: ME DETACH")
	assert.Equal(t, 1, obs.detaches)
}

func TestPDNActivatedNotifiesAutoContext(t *testing.T) {
	ch := transport.NewFake()
	ch.Expect("AT+CGDCONT?", transport.Response{OK: true, Lines: []string{"+CGDCONT: 5,\"IP\",\"ims\",\"\",0,0"}})
	obs := &recordingObserver{}
	d := NewGeneric(VendorGeneric, ch, obs, nil)

	d.onPacketEvent("+CGEV: ME PDN ACT 5")
	require.Len(t, obs.autoActivated, 1)
	assert.EqualValues(t, 5, obs.autoActivated[0])
}

func TestBearerMapIsTotalForUnknownInputs(t *testing.T) {
	assert.Equal(t, common.BearerNone, defaultBearerMap("99"))
	assert.Equal(t, common.BearerNone, quectelBearerMap("???"))
	assert.Equal(t, common.BearerNone, ubloxBearerMap("-1"))
}
