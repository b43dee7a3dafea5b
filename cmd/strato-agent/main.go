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

package main

import (
	"os"

	"github.com/strato-io/strato/cmd/strato-agent/run"
	"github.com/strato-io/strato/utils/log"
)

var gitCommitID = "dev"

func main() {
	printWelcome()
	run.Execute()
}

func printWelcome() {
	if gitCommitID == "" {
		gitCommitID = "dev"
	}
	hostname, _ := os.Hostname()
	log.Info("-------- Welcome to use Strato Dataset Agent --------")
	log.Infof("Git Commit ID : %s", gitCommitID)
	log.Infof("hostname : %s", hostname)
	log.Info("------------------------------------")
}
