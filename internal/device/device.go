// Package device handles local identity for the fleet: stable device id
// generation, hardware tier and capability probing, and the context
// record published on registration and heartbeat.
package device

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hivebrain/internal/logging"
	"hivebrain/internal/model"
)

// Version is stamped into every registered DeviceContext.
const Version = "1.0.0"

// Tier thresholds, evaluated in order.
const (
	serverMemBytes      = 32 << 30
	workstationMemBytes = 16 << 30
	laptopMemBytes      = 8 << 30
)

// GenerateDeviceID builds a stable identity from hostname and the first
// hardware MAC address. Without a usable MAC it falls back to a random
// 8-hex suffix, which is stable only for the process lifetime.
func GenerateDeviceID() string {
	hostname := Hostname()
	if mac := firstMAC(); mac != "" {
		return hostname + "_" + mac
	}
	return hostname + "_" + randomHex8()
}

// Hostname returns the OS hostname, or "unknown" if the lookup fails.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

func firstMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 6 {
			return strings.ToLower(iface.HardwareAddr.String())
		}
	}
	return ""
}

func randomHex8() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// DetectHardwareTier classifies the host by core count and total
// memory. When memory probing fails the tier defaults to laptop.
func DetectHardwareTier() model.HardwareTier {
	mem, ok := totalMemoryBytes()
	if !ok {
		return model.TierLaptop
	}
	cores := runtime.NumCPU()

	switch {
	case mem >= serverMemBytes && cores >= 8:
		return model.TierServer
	case mem >= workstationMemBytes && cores >= 4:
		return model.TierWorkstation
	case mem >= laptopMemBytes && cores >= 2:
		return model.TierLaptop
	default:
		return model.TierRaspberryPi
	}
}

// DetectCapabilities emits coarse capability tags for scheduling hints.
// "network" is always present.
func DetectCapabilities() []string {
	caps := []string{}

	if mem, ok := totalMemoryBytes(); ok {
		switch {
		case mem >= workstationMemBytes:
			caps = append(caps, "high_memory")
		case mem >= laptopMemBytes:
			caps = append(caps, "medium_memory")
		default:
			caps = append(caps, "low_memory")
		}
	}

	switch cores := runtime.NumCPU(); {
	case cores >= 8:
		caps = append(caps, "multi_core")
	case cores >= 4:
		caps = append(caps, "quad_core")
	default:
		caps = append(caps, "low_core")
	}

	if hasNvidiaGPU() {
		caps = append(caps, "gpu", "cuda")
	}

	return append(caps, "network")
}

// totalMemoryBytes reads /proc/meminfo. Returns false on any platform
// or parse failure; callers fall back to the laptop tier.
func totalMemoryBytes() (uint64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}

func hasNvidiaGPU() bool {
	if _, err := os.Stat("/proc/driver/nvidia"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	return false
}

// GetIPAddress discovers the outbound IP with the UDP-connect trick: no
// packet is sent, the kernel just picks the route. Empty on failure.
func GetIPAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

// LocalContext probes the host and assembles the DeviceContext this
// device registers under.
func LocalContext() *model.DeviceContext {
	ctx := &model.DeviceContext{
		DeviceID:     GenerateDeviceID(),
		HardwareTier: DetectHardwareTier(),
		Capabilities: DetectCapabilities(),
		Hostname:     Hostname(),
		IPAddress:    GetIPAddress(),
		LastSeen:     time.Now().UTC(),
		Status:       model.DeviceOnline,
		Version:      Version,
	}
	logging.Get(logging.CategoryDevice).Infow("probed local device",
		"device_id", ctx.DeviceID,
		"tier", ctx.HardwareTier,
		"capabilities", fmt.Sprintf("%v", ctx.Capabilities),
	)
	return ctx
}
