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

package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	strato "github.com/strato-io/strato"
)

var config struct {
	configPath string
	devBackend bool
}

var rootCmd = &cobra.Command{
	Use:     "strato-agent",
	Version: strato.Version,
	Short:   "Strato dataset convergence agent",
	Long: `strato-agent runs on every storage node. It keeps the node's
datasets converged with the cluster configuration published by the
control service: creating, attaching, mounting, unmounting, detaching
and destroying backend volumes as needed.

The control service endpoint and the node identity come from the
configuration file, see --config.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return subMain()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&config.configPath, "config", strato.DefaultConfigPath, "Directory containing config.json")
	fs.BoolVar(&config.devBackend, "dev-backend", false, "Force the in-memory backend, for development")
}
