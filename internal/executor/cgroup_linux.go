//go:build linux

package executor

import (
	"fmt"
	"os"

	"github.com/containerd/cgroups"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

type cpuLimiter struct {
	cgroup cgroups.Cgroup
}

// newCPULimiter creates a v1 cgroup for child processes. Hosts without a
// writable cgroup hierarchy run children unrestricted.
func newCPULimiter(shares uint64) cpuLimiter {
	if shares == 0 {
		return cpuLimiter{}
	}
	if shares < 2 {
		shares = 2
	}
	control, err := cgroups.New(
		cgroups.V1,
		cgroups.StaticPath(fmt.Sprintf("/yt-transcriber-%d", os.Getpid())),
		&specs.LinuxResources{
			CPU: &specs.LinuxCPU{
				Shares: &shares,
			},
		},
	)
	if err != nil {
		return cpuLimiter{}
	}
	return cpuLimiter{cgroup: control}
}

func (l cpuLimiter) add(pid int) {
	if l.cgroup == nil {
		return
	}
	_ = l.cgroup.Add(cgroups.Process{Pid: pid})
}
