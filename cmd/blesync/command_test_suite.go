//go:build test

package main

import (
	"bytes"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/devicefactory"
	"github.com/srg/blesync/internal/testutils"
	"github.com/srg/blesync/pkg/config"
	"github.com/stretchr/testify/suite"
)

// TestDeviceAddress is the address of the heart rate monitor every suite starts with.
const TestDeviceAddress = "AA:BB:CC:DD:EE:FF"

// CommandTestSuite runs commands against a fake radio injected through devicefactory.
// All cmd/blesync test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Helper *testutils.TestHelper
	Driver *testutils.FakeDriver
	HRM    *testutils.FakePeripheral

	originalFactory func(*config.Config, *logrus.Logger) (device.Driver, error)
	originalNoColor bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalFactory = devicefactory.DriverFactory
	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	devicefactory.DriverFactory = s.originalFactory
	color.NoColor = s.originalNoColor
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.HRM = testutils.CreateMockPeripheralFromJSON(testutils.HeartRateMonitorJSON).Build()
	s.UseDriver(testutils.NewFakeDriver().AddPeripheral(s.HRM))
	resetFlags()
}

// UseDriver makes the following commands run on driver.
func (s *CommandTestSuite) UseDriver(driver *testutils.FakeDriver) {
	s.Driver = driver
	devicefactory.DriverFactory = func(*config.Config, *logrus.Logger) (device.Driver, error) {
		return driver, nil
	}
}

// ExecuteCommand runs the root command with args and returns what it wrote to stdout.
// Progress lines and logs go to a separate stream.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(&lockedBuffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// lockedBuffer takes writes from the progress goroutine and the logger at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// resetFlags restores every flag to its default; cobra keeps values between Execute calls.
func resetFlags() {
	for _, name := range []string{"log-level", "config", "metrics-addr"} {
		_ = rootCmd.PersistentFlags().Set(name, "")
	}
	_ = rootCmd.PersistentFlags().Set("verbose", "false")

	stateFormat = ""

	scanDuration = 0
	scanFormat = ""
	scanService = ""
	scanAllowList = nil
	scanBlockList = nil
	scanAllowDuplicates = false

	inspectConnectTimeout = 0
	inspectReadValues = false
	inspectReadTimeout = 2 * time.Second
	inspectFormat = ""

	readHex = false
	readTimeout = 5 * time.Second

	writeHex = false
	writeWithoutResponse = false
	writeTimeout = 5 * time.Second

	notifyCount = 0
	notifyDuration = 0
	notifyTimeout = 5 * time.Second
	notifyFormat = ""
}
