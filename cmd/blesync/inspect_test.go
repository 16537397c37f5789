//go:build test

package main

import (
	"testing"
	"time"

	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type InspectTestSuite struct {
	CommandTestSuite
}

func (s *InspectTestSuite) TestInspect_TextTree() {
	// GOAL: Verify the topology is printed in discovery order with properties and descriptors
	//
	// TEST SCENARIO: Inspect HRM → two services, four characteristics, one descriptor

	out, err := s.ExecuteCommand("inspect", TestDeviceAddress)
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `Device AA:BB:CC:DD:EE:FF
  Service 180d
    Characteristic 2a37 [read, notify]
      Descriptor 2902
    Characteristic 2a38 [read]
    Characteristic 2a39 [writeWithoutResponse, write]
  Service 180f
    Characteristic 2a19 [read, notify]
`)
	s.True(testutils.Eventually(time.Second, func() bool { return s.Driver.OpenLinks() == 0 }), "device MUST be disconnected after inspection")
}

func (s *InspectTestSuite) TestInspect_ReadValuesJSON() {
	// GOAL: Verify --read fetches every readable characteristic one request at a time
	//
	// TEST SCENARIO: Inspect HRM with --read → three values, never more than one request in flight

	out, err := s.ExecuteCommand("inspect", TestDeviceAddress, "--read", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"address": "AA:BB:CC:DD:EE:FF",
		"services": [
			{
				"uuid": "180d",
				"characteristics": [
					{"uuid": "2a37", "properties": ["read", "notify"], "descriptors": ["2902"], "value": [0, 72]},
					{"uuid": "2a38", "properties": ["read"], "descriptors": [], "value": [1]},
					{"uuid": "2a39", "properties": ["writeWithoutResponse", "write"], "descriptors": []}
				]
			},
			{
				"uuid": "180f",
				"characteristics": [
					{"uuid": "2a19", "properties": ["read", "notify"], "descriptors": [], "value": [95]}
				]
			}
		]
	}`)
	s.Equal(1, s.Driver.MaxOutstanding(), "reads MUST be serialized")
}

func (s *InspectTestSuite) TestInspect_UnansweredReadIsReported() {
	s.Driver.AddPeripheral(testutils.CreateMockPeripheralFromJSON(testutils.HeartRateMonitorJSON).
		WithSilentCharacteristic("180d", "2a38").
		Build())

	out, err := s.ExecuteCommand("inspect", TestDeviceAddress, "--read", "--timeout", "1s")
	s.Require().NoError(err, "an unanswered read MUST NOT abort the inspection")
	s.Contains(out, "Value: read 2a38: operation timed out")
	s.Contains(out, "Value: 5F", "characteristics after the silent one MUST still be read")
}

func (s *InspectTestSuite) TestInspect_UnknownDevice() {
	_, err := s.ExecuteCommand("inspect", "11:22:33:44:55:66")
	s.ErrorIs(err, device.ErrDeviceNotFound)
}

func (s *InspectTestSuite) TestInspect_RequiresAddress() {
	_, err := s.ExecuteCommand("inspect")
	s.Error(err)
}

func TestInspectCommandSuite(t *testing.T) {
	suite.Run(t, new(InspectTestSuite))
}
