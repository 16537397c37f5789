//go:build test

package central_test

import (
	"testing"
	"time"

	"github.com/srg/blesync/central"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/opqueue"
	"github.com/srg/blesync/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	addr       = "AA:BB:CC:DD:EE:FF"
	eventWait  = 2 * time.Second
	pollEvery  = 5 * time.Millisecond
	opDeadline = 50 * time.Millisecond
)

type CentralTestSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	driver  *testutils.FakeDriver
	sink    *central.ChannelSink
	central *central.Central
}

// heartRatePeripheral is the single-service peripheral: 180d with 2a37 {read, notify}.
func heartRatePeripheral() *testutils.PeripheralBuilder {
	return testutils.CreateMockPeripheral(addr).
		WithService("180D").
		WithCharacteristic("2A37", "read,notify", []byte{0, 72}, "2902").
		WithLatency(2 * time.Millisecond)
}

func (s *CentralTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.useDriver(testutils.NewFakeDriver().AddPeripheral(heartRatePeripheral().Build()))
}

func (s *CentralTestSuite) useDriver(d *testutils.FakeDriver) {
	if s.central != nil {
		s.central.Close()
	}
	s.driver = d
	s.sink = central.NewChannelSink(1024)
	s.central = central.New(d, s.sink, s.helper.Logger, opqueue.Options{
		PollInterval:     pollEvery,
		OperationTimeout: opDeadline,
	})
}

func (s *CentralTestSuite) TearDownTest() {
	s.central.Close()
	s.central = nil
}

// await returns the next event with the given name, skipping others.
func (s *CentralTestSuite) await(name string) central.Event {
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-s.sink.C():
			if ev.Name() == name {
				return ev
			}
			s.T().Logf("skipping %s while waiting for %s", ev.Name(), name)
		case <-deadline:
			s.FailNow("timed out waiting for " + name)
			return nil
		}
	}
}

// noEvent asserts that no event with the given name arrives within d.
func (s *CentralTestSuite) noEvent(name string, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case ev := <-s.sink.C():
			s.Require().NotEqual(name, ev.Name(), "unexpected event %+v", ev)
		case <-deadline:
			return
		}
	}
}

func (s *CentralTestSuite) assertEvent(ev central.Event, expectedJSON string) {
	raw, err := central.MarshalEvent(ev)
	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(string(raw), expectedJSON)
}

func (s *CentralTestSuite) connect() {
	s.Require().NoError(s.central.Connect(addr))
	ev := s.await(central.NameConnect)
	s.Require().Nil(ev.(central.Connected).Error, "connect MUST succeed")
}

func (s *CentralTestSuite) TestEndToEndReadWriteNotify() {
	// GOAL: Verify the full connect → discover → read/write/notify flow against a heart rate peripheral
	//
	// TEST SCENARIO: Connect AA:BB:CC:DD:EE:FF → discover 180d/2a37 → read → write → read back → notify

	s.Require().NoError(s.central.Connect(addr))
	s.assertEvent(s.await(central.NameConnect), `{
		"name": "ble.connect",
		"address": "AA:BB:CC:DD:EE:FF",
		"services": ["180d"]
	}`)

	s.Equal([]string{"180d"}, s.central.DiscoverServices(addr, nil))
	s.assertEvent(s.await(central.NameServicesDiscover), `{
		"name": "ble.servicesDiscover",
		"address": "AA:BB:CC:DD:EE:FF",
		"services": ["180d"]
	}`)

	chars := s.central.DiscoverCharacteristics(addr, "180d", nil)
	s.Equal([]central.CharacteristicSummary{{UUID: "2a37", Properties: []string{"read", "notify"}}}, chars)
	s.assertEvent(s.await(central.NameCharacteristicsDiscover), `{
		"name": "ble.characteristicsDiscover",
		"service": "180d",
		"characteristics": [{"uuid": "2a37", "properties": ["read", "notify"]}]
	}`)

	s.Equal([]string{"2902"}, s.central.DiscoverDescriptors(addr, "180d", "2a37"))

	s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
	s.assertEvent(s.await(central.NameData), `{
		"name": "ble.data",
		"address": "AA:BB:CC:DD:EE:FF",
		"service": "180d",
		"characteristic": "2a37",
		"value": [0, 72],
		"isNotification": false
	}`)

	s.Require().NoError(s.central.Write(addr, "180D", "2A37", []byte{1, 2, 3}, false))
	s.assertEvent(s.await(central.NameWrite), `{
		"name": "ble.write",
		"service": "180d",
		"characteristic": "2a37"
	}`)

	s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
	data := s.await(central.NameData).(central.Data)
	s.Equal(central.Bytes{1, 2, 3}, data.Value, "read MUST return the last written bytes")

	s.Require().NoError(s.central.Notify(addr, "180d", "2a37", true))
	s.assertEvent(s.await(central.NameNotify), `{"name": "ble.notify", "enabled": true}`)

	s.True(s.driver.PushNotification(addr, "180d", "2a37", []byte{0, 80}))
	s.assertEvent(s.await(central.NameData), `{
		"name": "ble.data",
		"value": [0, 80],
		"isNotification": true
	}`)
}

func (s *CentralTestSuite) TestUnansweredReadIsSilent() {
	// GOAL: Verify a read the peripheral never answers produces no event and does not block the queue
	//
	// TEST SCENARIO: Silent 2a37 read → no data event after the timeout → next read on 2a38 is answered

	s.useDriver(testutils.NewFakeDriver().AddPeripheral(
		heartRatePeripheral().
			WithCharacteristic("2A38", "read", []byte{1}).
			WithSilentCharacteristic("180d", "2a37").
			Build()))
	s.connect()

	s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
	s.noEvent(central.NameData, opDeadline+4*pollEvery)

	s.Require().NoError(s.central.Read(addr, "180d", "2a38"))
	data := s.await(central.NameData).(central.Data)
	s.Equal("2a38", data.Characteristic)
	s.Equal(central.Bytes{1}, data.Value)

	s.Len(s.driver.Requests(), 2, "the abandoned read MUST have been dispatched exactly once")
}

func (s *CentralTestSuite) TestSerialization() {
	// GOAL: Verify N requests reach the radio in enqueue order with no overlap
	//
	// TEST SCENARIO: Burst of interleaved reads and writes → N dispatches, ordered, max one outstanding

	s.useDriver(testutils.NewFakeDriver().AddPeripheral(
		heartRatePeripheral().
			WithCharacteristic("2A39", "write", nil).
			WithLatency(3 * time.Millisecond).
			Build()))
	s.connect()

	const n = 12
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			s.Require().NoError(s.central.Write(addr, "180d", "2a39", []byte{byte(i)}, i%2 == 0))
			want = append(want, "2a39")
		} else {
			s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
			want = append(want, "2a37")
		}
	}

	s.True(testutils.Eventually(eventWait, func() bool { return len(s.driver.Requests()) == n }))
	reqs := s.driver.Requests()
	got := make([]string, 0, n)
	for i, r := range reqs {
		got = append(got, r.Characteristic)
		if i > 0 {
			s.Greater(r.OpID, reqs[i-1].OpID, "operation ids MUST follow enqueue order")
		}
	}
	s.Equal(want, got)
	s.Equal(1, s.driver.MaxOutstanding(), "requests MUST never overlap on the radio")
}

func (s *CentralTestSuite) TestAdmissionGating() {
	// GOAL: Verify requests never dispatch unless connected and addressed to a discovered characteristic
	//
	// TEST SCENARIO: Read while disconnected, unknown ids, other address → errors, no radio requests

	s.ErrorIs(s.central.Read(addr, "180d", "2a37"), device.ErrNotConnected)
	s.ErrorIs(s.central.Write(addr, "180d", "2a37", []byte{1}, false), device.ErrNotConnected)

	s.connect()

	var nf *device.NotFoundError
	s.ErrorAs(s.central.Read(addr, "180d", "ffff"), &nf)
	s.ErrorAs(s.central.Read(addr, "1234", "2a37"), &nf)
	s.ErrorIs(s.central.Read("11:22:33:44:55:66", "180d", "2a37"), device.ErrNotConnected)

	s.noEvent(central.NameData, 30*time.Millisecond)
	s.Empty(s.driver.Requests())
}

func (s *CentralTestSuite) TestDiscoveryIdempotenceAndFilters() {
	s.Empty(s.central.DiscoverServices(addr, nil), "no discovery yet MUST yield an empty result")
	s.assertEvent(s.await(central.NameServicesDiscover), `{"services": []}`)

	s.connect()

	first := s.central.DiscoverServices(addr, nil)
	s.Equal(first, s.central.DiscoverServices(addr, nil))
	s.Equal([]string{"180d"}, s.central.DiscoverServices(addr, []string{"0000180D-0000-1000-8000-00805F9B34FB"}))
	s.Empty(s.central.DiscoverServices(addr, []string{"ffff"}))

	s.Empty(s.central.DiscoverCharacteristics(addr, "180d", []string{"2a38"}))
	s.Len(s.central.DiscoverCharacteristics(addr, "180d", []string{"2A37"}), 1)
	s.Empty(s.central.DiscoverCharacteristics(addr, "ffff", nil))
	s.Empty(s.central.DiscoverDescriptors(addr, "180d", "ffff"))
}

func (s *CentralTestSuite) TestScanDeduplication() {
	// GOAL: Verify duplicate sightings are suppressed unless duplicates are allowed
	//
	// TEST SCENARIO: Two sightings of one address → one event; with duplicates allowed → two events

	adv := testutils.CreateMockAdvertisementFromJSON(`{
		"name": "HRM", "address": "%s", "rssi": -61,
		"services": ["180D", "180F"], "txPower": 4
	}`, addr).Build()

	s.Require().NoError(s.central.StartScan("", false))
	s.True(s.driver.Advertise(adv, adv))
	s.assertEvent(s.await(central.NameDiscover), `{
		"name": "ble.discover",
		"address": "AA:BB:CC:DD:EE:FF",
		"localName": "HRM",
		"rssi": "<<PRESENCE>>",
		"services": ["180d", "180f"],
		"txPowerLevel": 4,
		"connectable": true
	}`)
	s.noEvent(central.NameDiscover, 30*time.Millisecond)

	s.Require().NoError(s.central.StartScan("", true))
	s.True(s.driver.Advertise(adv))
	s.True(s.driver.Advertise(adv))
	s.await(central.NameDiscover)
	s.await(central.NameDiscover)
	s.Equal(2, s.driver.ScanStarts())
}

func (s *CentralTestSuite) TestScanFilter() {
	ab := testutils.CreateMockAdvertisement("AB", "11:11:11:11:11:11", -50).WithServices("aaaa", "bbbb").Build()

	tests := []struct {
		name    string
		filter  string
		forward bool
	}{
		{name: "no filter", filter: "", forward: true},
		{name: "matching filter", filter: "AAAA", forward: true},
		{name: "second service", filter: "bbbb", forward: true},
		{name: "non-matching filter", filter: "cccc", forward: false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Require().NoError(s.central.StartScan(tt.filter, false))
			s.True(s.driver.Advertise(ab))
			if tt.forward {
				ev := s.await(central.NameDiscover).(central.Discovered)
				s.Equal("11:11:11:11:11:11", ev.Address)
			} else {
				s.noEvent(central.NameDiscover, 30*time.Millisecond)
			}
		})
	}
}

func (s *CentralTestSuite) TestStopScanIsIdempotent() {
	s.Require().NoError(s.central.StartScan("", false))
	s.central.StopScan()
	s.central.StopScan()

	s.False(s.driver.Scanning())
	s.False(s.driver.Advertise(testutils.CreateMockAdvertisement("x", addr, -1).Build()))
}

func (s *CentralTestSuite) TestStartScanFailureReportsAdapterState() {
	s.driver.SetAdapterState(device.AdapterPoweredOff)
	s.assertEvent(s.await(central.NameStateChange), `{"state": "poweredOff"}`)

	s.Error(s.central.StartScan("", false))
	s.assertEvent(s.await(central.NameStateChange), `{"name": "ble.stateChange", "state": "poweredOff"}`)
	s.False(s.central.Scanner().Active())
}

func (s *CentralTestSuite) TestAdapterStateQuery() {
	s.Equal(device.AdapterPoweredOn, s.central.AdapterState())
	s.assertEvent(s.await(central.NameStateChange), `{"state": "poweredOn"}`)
}

func (s *CentralTestSuite) TestConnectFailures() {
	s.Error(s.central.Connect(""))
	s.assertEvent(s.await(central.NameConnect), `{
		"name": "ble.connect",
		"error": {"code": -1, "message": "<<PRESENCE>>"}
	}`)

	s.Require().NoError(s.central.Connect("11:22:33:44:55:66"))
	s.assertEvent(s.await(central.NameDisconnect), `{
		"name": "ble.disconnect",
		"address": "11:22:33:44:55:66",
		"error": {"code": -2}
	}`)
}

func (s *CentralTestSuite) TestDisconnectCleanup() {
	// GOAL: Verify disconnect clears state so nothing dispatches until reconnect
	//
	// TEST SCENARIO: Connect → disconnect → event, rejected reads, empty discovery → reconnect works

	s.connect()
	s.Require().NoError(s.central.Disconnect(addr))
	s.assertEvent(s.await(central.NameDisconnect), `{"name": "ble.disconnect", "address": "AA:BB:CC:DD:EE:FF"}`)

	s.Equal(device.Disconnected, s.central.Session().State())
	s.ErrorIs(s.central.Read(addr, "180d", "2a37"), device.ErrNotConnected)
	s.Empty(s.central.DiscoverServices(addr, nil))
	s.True(testutils.Eventually(time.Second, func() bool { return s.driver.OpenLinks() == 0 }))
	s.Empty(s.driver.Requests())

	s.connect()
	s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
	s.await(central.NameData)
}

func (s *CentralTestSuite) TestDisconnectOtherAddressIsRejected() {
	// GOAL: Verify a disconnect naming another device leaves the managed link alone
	//
	// TEST SCENARIO: Connect HRM → disconnect other address → ErrNotConnected, still connected, reads work

	s.connect()
	s.ErrorIs(s.central.Disconnect("11:22:33:44:55:66"), device.ErrNotConnected)

	s.Equal(device.Connected, s.central.Session().State(), "managed link MUST survive a foreign disconnect")
	s.Equal(1, s.driver.OpenLinks())
	s.Require().NoError(s.central.Read(addr, "180d", "2a37"))
	s.await(central.NameData)

	s.Require().NoError(s.central.Disconnect(" aa:bb:cc:dd:ee:ff "), "address match MUST ignore case and padding")
	s.await(central.NameDisconnect)
}

func (s *CentralTestSuite) TestDisconnectWithoutLink() {
	s.Error(s.central.Disconnect(addr))
	s.assertEvent(s.await(central.NameDisconnect), `{"error": {"code": -1}}`)
}

func (s *CentralTestSuite) TestRemoteDrop() {
	s.connect()
	s.driver.DropLink(addr, device.ErrLinkLost)

	ev := s.await(central.NameDisconnect).(central.Disconnected)
	s.Require().NotNil(ev.Error)
	s.Equal(device.CodeAdapterUnavailable, ev.Error.Code)
	s.Equal(device.Disconnected, s.central.Session().State())
}

func (s *CentralTestSuite) TestNotificationsAfterReconnectComeFromNewLink() {
	s.connect()
	s.Require().NoError(s.central.Notify(addr, "180d", "2a37", true))
	s.await(central.NameNotify)

	s.connect()
	s.False(s.driver.PushNotification(addr, "180d", "2a37", []byte{9}), "the new link is not subscribed")
	s.noEvent(central.NameData, 30*time.Millisecond)
}

func (s *CentralTestSuite) TestCloseIsIdempotent() {
	s.connect()
	s.Require().NoError(s.central.StartScan("", false))

	s.central.Close()
	s.central.Close()

	s.False(s.driver.Scanning())
	s.True(testutils.Eventually(time.Second, func() bool { return s.driver.OpenLinks() == 0 }))
	s.Equal(device.Disconnected, s.central.Session().State())
}

func TestCentralTestSuite(t *testing.T) {
	suite.Run(t, new(CentralTestSuite))
}
