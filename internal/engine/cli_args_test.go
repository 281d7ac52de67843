// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"reflect"
	"testing"
)

func newTestEngine() *BaseCLIEngine {
	return NewBaseCLIEngine("docker", "/usr/bin/docker")
}

func TestRunArgsMinimal(t *testing.T) {
	args := newTestEngine().RunArgs(RunOptions{Image: "debian:12", Command: []string{"true"}})
	want := []string{"run", "debian:12", "true"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("RunArgs = %v, want %v", args, want)
	}
}

func TestRunArgsFull(t *testing.T) {
	args := newTestEngine().RunArgs(RunOptions{
		Image:      "strata-layer:abc",
		Command:    []string{"-ec", "apt-get update"},
		Entrypoint: []string{"/bin/sh"},
		WorkDir:    "/srv",
		User:       "svc",
		Env:        map[string]string{"B": "2", "A": "1"},
		Volumes:    []string{"/data:/data"},
		Name:       "strata-step-1",
		Privileged: true,
	})

	want := []string{
		"run",
		"--name", "strata-step-1",
		"--privileged",
		"--user", "svc",
		"--workdir", "/srv",
		"--entrypoint", "/bin/sh",
		"--env", "A=1", // sorted key order, reproducible invocations
		"--env", "B=2",
		"--volume", "/data:/data",
		"strata-layer:abc",
		"-ec", "apt-get update",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("RunArgs = %v, want %v", args, want)
	}
}

func TestRunArgsInteractiveTTY(t *testing.T) {
	args := newTestEngine().RunArgs(RunOptions{
		Image:       "debian:12",
		Remove:      true,
		Interactive: true,
		TTY:         true,
	})
	want := []string{"run", "--rm", "--interactive", "--tty", "debian:12"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("RunArgs = %v, want %v", args, want)
	}
}

func TestCommitArgs(t *testing.T) {
	args := newTestEngine().CommitArgs(CommitOptions{
		Container: "strata-step-1",
		Tag:       "strata-layer:abc",
		Changes:   []string{"ENV A=1", `ENTRYPOINT ["dockerd"]`},
	})

	want := []string{
		"commit",
		"--change", "ENV A=1",
		"--change", `ENTRYPOINT ["dockerd"]`,
		"strata-step-1", "strata-layer:abc",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("CommitArgs = %v, want %v", args, want)
	}
}
