/*
   Copyright @ 2024 strato authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package backend

import (
	"fmt"
	"os"

	"k8s.io/mount-utils"
	utilexec "k8s.io/utils/exec"
)

// MountPoint is one active filesystem mount.
type MountPoint struct {
	Device string
	Path   string
}

// Mounter abstracts the filesystem mount primitives the agent needs.
// Formatting and mounting themselves are treated as primitives; the
// convergence core only decides when they happen.
type Mounter interface {
	// MountDevice formats devicePath with fsType if it carries no
	// filesystem, then mounts it at mountPoint.
	MountDevice(devicePath, mountPoint, fsType string) error

	// Unmount removes the mount at mountPoint.
	Unmount(mountPoint string) error

	// List returns the active mounts visible to this node.
	List() ([]MountPoint, error)
}

type localMounter struct {
	mounter *mount.SafeFormatAndMount
}

// NewMounter returns a Mounter backed by the host mount table.
func NewMounter() Mounter {
	return &localMounter{
		mounter: &mount.SafeFormatAndMount{
			Interface: mount.New(""),
			Exec:      utilexec.New(),
		},
	}
}

func (m *localMounter) MountDevice(devicePath, mountPoint, fsType string) error {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return fmt.Errorf("create mount point %s: %w", mountPoint, err)
	}
	return m.mounter.FormatAndMount(devicePath, mountPoint, fsType, nil)
}

func (m *localMounter) Unmount(mountPoint string) error {
	return mount.CleanupMountPoint(mountPoint, m.mounter, false)
}

func (m *localMounter) List() ([]MountPoint, error) {
	mounts, err := m.mounter.List()
	if err != nil {
		return nil, err
	}
	result := make([]MountPoint, 0, len(mounts))
	for _, mp := range mounts {
		result = append(result, MountPoint{Device: mp.Device, Path: mp.Path})
	}
	return result, nil
}
