package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}

func CreateMockPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder().WithAddress(address)
}

func CreateMockPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(jsonStrFmt, args...)
}

// HeartRateMonitorJSON is the canonical single-service peripheral used across suites.
const HeartRateMonitorJSON = `{
	"address": "AA:BB:CC:DD:EE:FF",
	"services": [
		{
			"uuid": "180D",
			"characteristics": [
				{ "uuid": "2A37", "properties": "read,notify", "value": [0, 72], "descriptors": ["2902"] },
				{ "uuid": "2A38", "properties": "read", "value": [1] },
				{ "uuid": "2A39", "properties": "write,writeWithoutResponse" }
			]
		},
		{
			"uuid": "180F",
			"characteristics": [
				{ "uuid": "2A19", "properties": "read,notify", "value": [95] }
			]
		}
	]
}`

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
