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
	"sync"
)

// FakeMounter is an in-memory Mounter for tests and the dev backend loop.
type FakeMounter struct {
	mu     sync.Mutex
	mounts map[string]string // mount point -> device
}

func NewFakeMounter() *FakeMounter {
	return &FakeMounter{mounts: map[string]string{}}
}

func (f *FakeMounter) MountDevice(devicePath, mountPoint, fsType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mounts[mountPoint]; ok {
		return fmt.Errorf("%s is already mounted", mountPoint)
	}
	f.mounts[mountPoint] = devicePath
	return nil
}

func (f *FakeMounter) Unmount(mountPoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mounts[mountPoint]; !ok {
		return fmt.Errorf("%s is not mounted", mountPoint)
	}
	delete(f.mounts, mountPoint)
	return nil
}

func (f *FakeMounter) List() ([]MountPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]MountPoint, 0, len(f.mounts))
	for target, device := range f.mounts {
		result = append(result, MountPoint{Device: device, Path: target})
	}
	return result, nil
}
