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
	"sort"

	"github.com/strato-io/strato/pkg/dataset"
)

// UnknownTransitionError reports a (desired, discovered) pair missing
// from the transition table. It is a programming defect and aborts the
// whole planning pass rather than silently no-opping.
type UnknownTransitionError struct {
	DatasetID  dataset.ID
	Desired    dataset.DesiredState
	Discovered dataset.DiscoveredState
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("dataset %s: no transition for desired=%s discovered=%s",
		e.DatasetID, e.Desired, e.Discovered)
}

// Calculator picks exactly one corrective action per dataset from the
// gap between discovered and desired state. It is pure planning: no side
// effects, identical inputs yield identical action sets.
type Calculator struct {
	table map[transitionKey]actionBuilder
}

// NewCalculator returns a calculator over the default transition table.
func NewCalculator() *Calculator {
	return &Calculator{table: defaultTable()}
}

// Calculate plans one action for every dataset present in either map. A
// dataset only present in discovered is treated as desired deleted so
// orphans converge to destruction; one only present in desired is
// treated as discovered non-existent. The returned actions are
// independent and carry no relative ordering.
func (c *Calculator) Calculate(discovered map[dataset.ID]dataset.Discovered, desired map[dataset.ID]dataset.Desired) ([]Action, error) {
	ids := make([]dataset.ID, 0, len(discovered)+len(desired))
	seen := map[dataset.ID]struct{}{}
	for id := range discovered {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	for id := range desired {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	actions := make([]Action, 0, len(ids))
	for _, id := range ids {
		dis, ok := discovered[id]
		if !ok {
			var err error
			dis, err = dataset.NewDiscoveredNonExistent(id)
			if err != nil {
				return nil, err
			}
		}
		des, ok := desired[id]
		if !ok {
			var err error
			des, err = dataset.NewDesiredDeleted(id, nil)
			if err != nil {
				return nil, err
			}
		}

		builder, ok := c.table[transitionKey{des.State(), dis.State()}]
		if !ok {
			return nil, &UnknownTransitionError{
				DatasetID:  id,
				Desired:    des.State(),
				Discovered: dis.State(),
			}
		}
		action, err := builder(dis, des)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}
