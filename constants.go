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

package strato

import "time"

const (
	// Version project
	Version = "beta"

	// DefaultMountRoot is the directory under which dataset filesystems
	// are mounted, one subdirectory per dataset id.
	DefaultMountRoot = "/var/lib/strato/datasets"

	// DefaultConfigPath is the directory searched for the agent
	// configuration file.
	DefaultConfigPath = "/etc/strato/"

	// DefaultLogPath is the agent log file location.
	DefaultLogPath = "/var/log/strato/strato-agent.log"

	// DefaultConvergenceInterval is the delay between the end of one
	// convergence iteration and the start of the next. It is a tunable,
	// not a contract: an eventually consistent backend may need a larger
	// value before list results reflect a just-issued create or attach.
	DefaultConvergenceInterval = time.Second

	// DefaultActionWorkers bounds how many dataset actions run
	// concurrently within one convergence iteration.
	DefaultActionWorkers = 4

	// DefaultHTTPAddr is the listen address of the agent status server.
	DefaultHTTPAddr = ":8089"

	// DefaultDatasetSize is used when the desired configuration does not
	// carry an explicit maximum size for a dataset.
	DefaultDatasetSize = 100 << 30
)
