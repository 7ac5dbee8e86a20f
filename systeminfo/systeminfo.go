package systeminfo

import (
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"scanaudit/config"
	"scanaudit/logger"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// HostInfo identifies the machine and account that produced a report.
type HostInfo struct {
	Hostname        string   `json:"hostname"`
	OS              string   `json:"os"`
	Platform        string   `json:"platform,omitempty"`
	PlatformVersion string   `json:"platform_version,omitempty"`
	KernelArch      string   `json:"kernel_arch,omitempty"`
	BootTime        string   `json:"boot_time,omitempty"`
	RunAs           string   `json:"run_as,omitempty"`
	Addresses       []string `json:"addresses,omitempty"`
}

// GetHostInfo returns nil when collection is disabled. Individual failures are
// logged and leave the corresponding fields empty.
func GetHostInfo(cfg *config.Config) *HostInfo {
	if !cfg.CollectSystemInfo {
		return nil
	}
	info := &HostInfo{}

	if err := gatherHost(info); err != nil {
		logger.Warnf("Failed to gather host details: %v", err)
	}
	if err := gatherRunAs(info); err != nil {
		logger.Debugf("Failed to resolve report user: %v", err)
	}
	if err := gatherAddresses(info); err != nil {
		logger.Warnf("Failed to gather network addresses: %v", err)
	}
	if info.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			info.Hostname = name
		}
	}
	return info
}

func gatherHost(info *HostInfo) error {
	stat, err := host.Info()
	if err != nil {
		return fmt.Errorf("failed to get host info: %v", err)
	}
	info.Hostname = stat.Hostname
	info.OS = stat.OS
	info.Platform = stat.Platform
	info.PlatformVersion = stat.PlatformVersion
	info.KernelArch = stat.KernelArch
	if stat.BootTime > 0 {
		info.BootTime = time.Unix(int64(stat.BootTime), 0).UTC().Format(time.RFC3339)
	}
	return nil
}

func gatherRunAs(info *HostInfo) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	name, err := p.Username()
	if err != nil {
		return err
	}
	info.RunAs = name
	return nil
}

func gatherAddresses(info *HostInfo) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("failed to get network interfaces: %v", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			info.Addresses = append(info.Addresses, addr.String())
		}
	}
	sort.Strings(info.Addresses)
	return nil
}
