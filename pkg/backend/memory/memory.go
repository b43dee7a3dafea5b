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

// Package memory implements the storage backend contract entirely in
// memory. It is the reference implementation driven by the unit tests
// and the --dev-backend run mode; real providers live out of tree.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/strato-io/strato/pkg/backend"
	"github.com/strato-io/strato/pkg/dataset"
)

type volumeRecord struct {
	blockDeviceID string
	datasetID     dataset.ID
	size          uint64
	attachedTo    string
	devicePath    string
}

// BackendImplement is an in-memory backend.Backend.
type BackendImplement struct {
	mu        sync.Mutex
	volumes   map[string]*volumeRecord
	byDataset map[dataset.ID]string
	sequence  int
}

var _ backend.Backend = &BackendImplement{}

func init() {
	backend.Register("memory", func() (backend.Backend, error) {
		return NewBackend(), nil
	})
}

// NewBackend returns an empty in-memory backend.
func NewBackend() *BackendImplement {
	return &BackendImplement{
		volumes:   map[string]*volumeRecord{},
		byDataset: map[dataset.ID]string{},
	}
}

func (b *BackendImplement) CreateVolume(_ context.Context, datasetID dataset.ID, size uint64) (dataset.Volume, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byDataset[datasetID]; ok {
		return dataset.Volume{}, &backend.AlreadyExistsError{DatasetID: datasetID}
	}

	b.sequence++
	rec := &volumeRecord{
		blockDeviceID: fmt.Sprintf("strato-bd-%d", b.sequence),
		datasetID:     datasetID,
		size:          size,
	}
	b.volumes[rec.blockDeviceID] = rec
	b.byDataset[datasetID] = rec.blockDeviceID
	return rec.volume(), nil
}

func (b *BackendImplement) AttachVolume(_ context.Context, blockDeviceID, nodeID string) (dataset.Volume, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.volumes[blockDeviceID]
	if !ok {
		return dataset.Volume{}, &backend.UnknownVolumeError{BlockDeviceID: blockDeviceID}
	}
	if rec.attachedTo != "" {
		return dataset.Volume{}, &backend.AlreadyAttachedError{BlockDeviceID: blockDeviceID, AttachedTo: rec.attachedTo}
	}
	rec.attachedTo = nodeID
	rec.devicePath = fmt.Sprintf("/dev/strato/%s", blockDeviceID)
	return rec.volume(), nil
}

func (b *BackendImplement) DetachVolume(_ context.Context, blockDeviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.volumes[blockDeviceID]
	if !ok {
		return &backend.UnknownVolumeError{BlockDeviceID: blockDeviceID}
	}
	if rec.attachedTo == "" {
		return &backend.UnattachedVolumeError{BlockDeviceID: blockDeviceID}
	}
	rec.attachedTo = ""
	rec.devicePath = ""
	return nil
}

func (b *BackendImplement) DestroyVolume(_ context.Context, blockDeviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.volumes[blockDeviceID]
	if !ok {
		return &backend.UnknownVolumeError{BlockDeviceID: blockDeviceID}
	}
	delete(b.volumes, blockDeviceID)
	delete(b.byDataset, rec.datasetID)
	return nil
}

func (b *BackendImplement) ListVolumes(_ context.Context) ([]dataset.Volume, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]dataset.Volume, 0, len(b.volumes))
	for _, rec := range b.volumes {
		result = append(result, rec.volume())
	}
	return result, nil
}

func (b *BackendImplement) GetDevicePath(_ context.Context, blockDeviceID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.volumes[blockDeviceID]
	if !ok {
		return "", &backend.UnknownVolumeError{BlockDeviceID: blockDeviceID}
	}
	if rec.attachedTo == "" {
		return "", &backend.UnattachedVolumeError{BlockDeviceID: blockDeviceID}
	}
	return rec.devicePath, nil
}

func (r *volumeRecord) volume() dataset.Volume {
	return dataset.Volume{
		BlockDeviceID: r.blockDeviceID,
		DatasetID:     r.datasetID,
		Size:          r.size,
		AttachedTo:    r.attachedTo,
	}
}
