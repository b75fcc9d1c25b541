// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for a proxy deployment:
// descriptor headroom for the expected session count, the listen socket,
// and TCP reachability of the origin.
func RunAll(listenAddr, originAddr string, dialTimeout time.Duration) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	fdCheck := checkFileDescriptors()
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	listenCheck := checkListenAddr(listenAddr)
	result.Checks = append(result.Checks, listenCheck)
	if !listenCheck.Passed {
		result.Passed = false
	}

	originCheck := checkOrigin(originAddr, dialTimeout)
	result.Checks = append(result.Checks, originCheck)
	if !originCheck.Passed {
		result.Passed = false
	}

	// Ephemeral port check (warning only)
	portCheck := checkEphemeralPorts()
	result.Checks = append(result.Checks, portCheck)

	return result
}

// expectedSessions sizes the descriptor requirement. Each session holds two
// sockets plus buffered readers; the metrics server and logging need a
// little headroom on top.
const expectedSessions = 1024

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	required := expectedSessions*2 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d sessions)", actual, required, expectedSessions),
	}
}

// checkListenAddr verifies the listen address can be bound, then releases it.
func checkListenAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "listen_addr",
			Message: fmt.Sprintf("cannot bind %s: %v", addr, err),
		}
	}
	ln.Close()
	return Check{
		Name:    "listen_addr",
		Passed:  true,
		Message: fmt.Sprintf("bound %s", addr),
	}
}

// checkOrigin probes the origin's TCP endpoint.
func checkOrigin(addr string, timeout time.Duration) Check {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return Check{
			Name:    "origin",
			Message: fmt.Sprintf("cannot reach %s: %v", addr, err),
		}
	}
	conn.Close()
	return Check{
		Name:    "origin",
		Passed:  true,
		Message: fmt.Sprintf("reachable at %s", addr),
	}
}

// checkEphemeralPorts checks if enough ephemeral ports are available for
// outbound origin connections.
func checkEphemeralPorts() Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}

	var low, high int
	fmt.Sscanf(string(data), "%d %d", &low, &high)
	available := high - low

	// One outbound connection per session, headroom for TIME_WAIT.
	recommended := expectedSessions * 2

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true, // Don't fail on this
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "listen_addr":
		return "free the port or change -listen"
	case "origin":
		return "verify the origin is running and -origin/-origin-port are correct"
	default:
		return "see documentation"
	}
}
