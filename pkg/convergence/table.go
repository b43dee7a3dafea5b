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

package convergence

import (
	"fmt"

	"github.com/strato-io/strato/pkg/dataset"
)

type transitionKey struct {
	desired    dataset.DesiredState
	discovered dataset.DiscoveredState
}

type actionBuilder func(discovered dataset.Discovered, desired dataset.Desired) (Action, error)

// defaultTable maps every (desired, discovered) state pair to the single
// corrective action that moves the dataset one step toward its desired
// state. Built once at startup and never mutated.
func defaultTable() map[transitionKey]actionBuilder {
	return map[transitionKey]actionBuilder{
		// Desired mounted: create, then attach, then mount.
		{dataset.DesiredMounted, dataset.NonExistent}: buildCreate,
		{dataset.DesiredMounted, dataset.NonManifest}: buildAttach,
		{dataset.DesiredMounted, dataset.Attached}:    buildMount,
		{dataset.DesiredMounted, dataset.Mounted}:     buildNothing,

		// Desired not-mounted: realize the volume here but leave it bare.
		{dataset.DesiredNotMounted, dataset.NonExistent}: buildCreate,
		{dataset.DesiredNotMounted, dataset.NonManifest}: buildAttach,
		{dataset.DesiredNotMounted, dataset.Attached}:    buildNothing,
		{dataset.DesiredNotMounted, dataset.Mounted}:     buildUnmount,

		// Desired deleted: unwind one layer per cycle.
		{dataset.DesiredDeleted, dataset.NonExistent}: buildNothing,
		{dataset.DesiredDeleted, dataset.NonManifest}: buildDestroy,
		{dataset.DesiredDeleted, dataset.Attached}:    buildDestroy,
		{dataset.DesiredDeleted, dataset.Mounted}:     buildUnmount,

		// Desired non-manifest: the dataset belongs to some other node,
		// so release whatever hold this node has on it.
		{dataset.DesiredNonManifest, dataset.NonExistent}: buildNothing,
		{dataset.DesiredNonManifest, dataset.NonManifest}: buildNothing,
		{dataset.DesiredNonManifest, dataset.Attached}:    buildDetach,
		{dataset.DesiredNonManifest, dataset.Mounted}:     buildUnmount,
	}
}

func buildCreate(_ dataset.Discovered, desired dataset.Desired) (Action, error) {
	return NewCreateVolume(desired), nil
}

func buildAttach(_ dataset.Discovered, desired dataset.Desired) (Action, error) {
	return NewAttachVolume(desired), nil
}

func buildMount(discovered dataset.Discovered, desired dataset.Desired) (Action, error) {
	attached, ok := discovered.(dataset.DiscoveredAttached)
	if !ok {
		return nil, fmt.Errorf("dataset %s: mount planned from %T, want attached", discovered.DatasetID(), discovered)
	}
	return NewMountDataset(attached, desired), nil
}

func buildUnmount(discovered dataset.Discovered, _ dataset.Desired) (Action, error) {
	mounted, ok := discovered.(dataset.DiscoveredMounted)
	if !ok {
		return nil, fmt.Errorf("dataset %s: unmount planned from %T, want mounted", discovered.DatasetID(), discovered)
	}
	return NewUnmountDataset(mounted), nil
}

func buildDetach(discovered dataset.Discovered, _ dataset.Desired) (Action, error) {
	attached, ok := discovered.(dataset.DiscoveredAttached)
	if !ok {
		return nil, fmt.Errorf("dataset %s: detach planned from %T, want attached", discovered.DatasetID(), discovered)
	}
	return NewDetachVolume(attached), nil
}

func buildDestroy(discovered dataset.Discovered, _ dataset.Desired) (Action, error) {
	return NewDestroyVolume(discovered.DatasetID()), nil
}

func buildNothing(discovered dataset.Discovered, _ dataset.Desired) (Action, error) {
	return NewDoNothing(discovered.DatasetID()), nil
}
