//go:build test

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type NotifyTestSuite struct {
	CommandTestSuite
}

func (s *NotifyTestSuite) subscribed(enable bool) bool {
	for _, r := range s.Driver.Requests() {
		if r.Kind == device.OpNotify && r.Enable == enable {
			return true
		}
	}
	return false
}

// pushUntil keeps pushing value on 180d/2a37 until done is closed.
func (s *NotifyTestSuite) pushUntil(done <-chan struct{}, value []byte) {
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Driver.PushNotification(TestDeviceAddress, "180d", "2a37", value)
			}
		}
	}()
}

func (s *NotifyTestSuite) TestNotify_CountJSON() {
	// GOAL: Verify pushed values are printed until --count is reached and the subscription is released
	//
	// TEST SCENARIO: Subscribe 2a37 with --count 2 → two ble.data lines → unsubscribe request sent

	done := make(chan struct{})
	defer close(done)
	s.pushUntil(done, []byte{0, 80})

	out, err := s.ExecuteCommand("notify", TestDeviceAddress, "180d", "2a37", "--count", "2", "--format", "json")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 2, "exactly --count notifications MUST be printed:\n%s", out)
	for _, line := range lines {
		testutils.NewJSONAsserter(s.T()).Assert(line, `{
			"name": "ble.data",
			"address": "AA:BB:CC:DD:EE:FF",
			"service": "180d",
			"characteristic": "2a37",
			"value": [0, 80],
			"isNotification": true
		}`)
	}
	s.True(s.subscribed(true))
	s.True(s.subscribed(false), "subscription MUST be disabled before disconnecting")
}

func (s *NotifyTestSuite) TestNotify_DurationWithoutValues() {
	out, err := s.ExecuteCommand("notify", TestDeviceAddress, "180d", "2a37", "--duration", "150ms")
	s.Require().NoError(err)
	s.Empty(out)
	s.True(s.subscribed(true))
}

func (s *NotifyTestSuite) TestNotify_LinkLost() {
	// GOAL: Verify a remote disconnect ends the stream with an error
	//
	// TEST SCENARIO: Subscribe → peripheral drops the link → link lost error

	go func() {
		if testutils.Eventually(time.Second, func() bool { return s.subscribed(true) }) {
			s.Driver.DropLink(TestDeviceAddress, device.ErrLinkLost)
		}
	}()

	_, err := s.ExecuteCommand("notify", TestDeviceAddress, "180d", "2a37", "--duration", "2s")
	s.ErrorIs(err, device.ErrLinkLost)
}

func (s *NotifyTestSuite) TestNotify_NegativeCount() {
	_, err := s.ExecuteCommand("notify", TestDeviceAddress, "180d", "2a37", "--count", "-1")
	s.ErrorContains(err, "--count")
}

func TestNotifyCommandSuite(t *testing.T) {
	suite.Run(t, new(NotifyTestSuite))
}
