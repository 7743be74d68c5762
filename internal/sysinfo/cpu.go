// Package sysinfo answers get_cpu_info (§6). No library in the corpus
// exposes physical-vs-logical core counts portably, so this stays on the
// standard library (runtime, plus /proc/cpuinfo on Linux for the physical
// count) rather than pulling in a dependency for two integers.
package sysinfo

import (
	"bufio"
	"os"
	"runtime"
	"strings"
)

// CPUInfo is the result of get_cpu_info (§6).
type CPUInfo struct {
	PhysicalCores int
	LogicalCores  int
}

// GetCPUInfo returns the host's physical and logical core counts.
// PhysicalCores falls back to LogicalCores whenever the host doesn't expose
// /proc/cpuinfo (non-Linux) or parsing it fails.
func GetCPUInfo() CPUInfo {
	logical := runtime.NumCPU()
	physical := physicalCores()
	if physical <= 0 {
		physical = logical
	}
	return CPUInfo{PhysicalCores: physical, LogicalCores: logical}
}

// physicalCores counts distinct (physical id, core id) pairs in
// /proc/cpuinfo. Returns 0 if the file is absent or unparseable.
func physicalCores() int {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var physID, coreID string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "physical id"):
			physID = fieldValue(line)
		case strings.HasPrefix(line, "core id"):
			coreID = fieldValue(line)
			if physID != "" {
				seen[physID+":"+coreID] = struct{}{}
			}
		case line == "":
			physID, coreID = "", ""
		}
	}
	return len(seen)
}

func fieldValue(line string) string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
