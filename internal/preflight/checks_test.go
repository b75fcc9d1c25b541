package preflight

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

func TestCheckListenAddr(t *testing.T) {
	t.Run("bindable", func(t *testing.T) {
		c := checkListenAddr("127.0.0.1:0")
		if !c.Passed {
			t.Errorf("checkListenAddr(127.0.0.1:0) failed: %s", c.Message)
		}
	})

	t.Run("already_bound", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()

		c := checkListenAddr(ln.Addr().String())
		if c.Passed {
			t.Error("expected failure binding an address already in use")
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()

		c := checkOrigin(ln.Addr().String(), time.Second)
		if !c.Passed {
			t.Errorf("checkOrigin failed: %s", c.Message)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		ln.Close()

		c := checkOrigin(addr, 500*time.Millisecond)
		if c.Passed {
			t.Error("expected failure probing a closed port")
		}
	})
}

func TestRunAll(t *testing.T) {
	origin, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer origin.Close()
	go func() {
		for {
			conn, err := origin.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := RunAll("127.0.0.1:0", origin.Addr().String(), time.Second)
	if len(result.Checks) != 4 {
		t.Errorf("RunAll produced %d checks, want 4", len(result.Checks))
	}

	// Listen and origin checks must pass against live loopback endpoints;
	// the descriptor check depends on the environment's ulimit.
	for _, c := range result.Checks {
		if (c.Name == "listen_addr" || c.Name == "origin") && !c.Passed {
			t.Errorf("check %s failed: %s", c.Name, c.Message)
		}
	}
}
