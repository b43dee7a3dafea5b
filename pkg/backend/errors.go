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
	"errors"
	"fmt"

	"github.com/strato-io/strato/pkg/dataset"
)

// UnknownVolumeError reports an operation against a volume the backend
// does not recognize.
type UnknownVolumeError struct {
	BlockDeviceID string
}

func (e *UnknownVolumeError) Error() string {
	return fmt.Sprintf("unknown volume %s", e.BlockDeviceID)
}

// UnattachedVolumeError reports an operation that requires the volume to
// be attached when it is not.
type UnattachedVolumeError struct {
	BlockDeviceID string
}

func (e *UnattachedVolumeError) Error() string {
	return fmt.Sprintf("volume %s is not attached", e.BlockDeviceID)
}

// AlreadyAttachedError reports an attach of a volume that is already
// attached somewhere.
type AlreadyAttachedError struct {
	BlockDeviceID string
	AttachedTo    string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("volume %s is already attached to %s", e.BlockDeviceID, e.AttachedTo)
}

// AlreadyExistsError reports a duplicate create for a dataset that
// already has a backing volume.
type AlreadyExistsError struct {
	DatasetID dataset.ID
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("volume for dataset %s already exists", e.DatasetID)
}

func IsUnknownVolume(err error) bool {
	var e *UnknownVolumeError
	return errors.As(err, &e)
}

func IsUnattachedVolume(err error) bool {
	var e *UnattachedVolumeError
	return errors.As(err, &e)
}

func IsAlreadyAttached(err error) bool {
	var e *AlreadyAttachedError
	return errors.As(err, &e)
}

func IsAlreadyExists(err error) bool {
	var e *AlreadyExistsError
	return errors.As(err, &e)
}
