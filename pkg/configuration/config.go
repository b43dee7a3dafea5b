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

// Package configuration loads the agent configuration file and keeps it
// fresh. Callers read through accessor functions; a config file change
// on disk is re-validated and, when sound, published to registered
// listener channels.
package configuration

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	strato "github.com/strato-io/strato"
	"github.com/strato-io/strato/utils"
	"github.com/strato-io/strato/utils/log"
)

// Agent is the on-disk configuration shape.
type Agent struct {
	NodeName            string        `json:"nodeName"`
	ControlServiceURL   string        `json:"controlServiceURL"`
	Backend             string        `json:"backend"`
	MountRoot           string        `json:"mountRoot"`
	FSType              string        `json:"fsType"`
	ConvergenceInterval time.Duration `json:"convergenceInterval"`
	ActionWorkers       int           `json:"actionWorkers"`
	HTTPAddr            string        `json:"httpAddr"`
	LogFile             string        `json:"logFile"`
	LogLevel            string        `json:"logLevel"`
}

var (
	globalConfig       *viper.Viper
	configModifyNotice []chan<- struct{}

	// configMu guards agentConfig: the fsnotify watcher swaps it while
	// accessors read it.
	configMu    sync.RWMutex
	agentConfig Agent
)

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

// Load reads config.json from the given directory and starts watching it
// for changes. It must be called once before any accessor.
func Load(configPath string) error {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}

	var cfg Agent
	if err := v.Unmarshal(&cfg, opt); err != nil {
		return fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	globalConfig = v
	configMu.Lock()
	agentConfig = cfg
	configMu.Unlock()
	go dynamicConfig()
	return nil
}

func dynamicConfig() {
	globalConfig.WatchConfig()
	globalConfig.OnConfigChange(func(event fsnotify.Event) {
		log.Infof("Detect config change: %s", event.String())
		var cfg Agent
		if err := globalConfig.Unmarshal(&cfg, opt); err != nil {
			log.Errorf("Failed to unmarshal the configuration: %s, ignore this change", err)
			return
		}
		if err := validate(cfg); err != nil {
			log.Errorf("Failed to validate the configuration: %s, ignore this change", err)
			return
		}
		configMu.Lock()
		agentConfig = cfg
		configMu.Unlock()
		for _, c := range configModifyNotice {
			log.Info("Generates the configuration change event")
			c <- struct{}{}
		}
	})
}

// RegisterListenerChan subscribes a channel to config change events.
func RegisterListenerChan(c chan<- struct{}) {
	configModifyNotice = append(configModifyNotice, c)
}

func current() Agent {
	configMu.RLock()
	defer configMu.RUnlock()
	return agentConfig
}

// NodeName is this node's identity toward the control service. Falls
// back to the OS hostname.
func NodeName() string {
	if current().NodeName != "" {
		return current().NodeName
	}
	hostname, err := os.Hostname()
	if err != nil {
		log.Errorf("Failed to get hostname: %s", err)
		return ""
	}
	return hostname
}

// ControlServiceURL is the websocket endpoint of the control service.
func ControlServiceURL() string {
	return current().ControlServiceURL
}

// Backend names the storage backend implementation to use.
func Backend() string {
	if current().Backend == "" {
		return "memory"
	}
	return current().Backend
}

// MountRoot is the directory datasets are mounted under.
func MountRoot() string {
	if current().MountRoot == "" {
		return strato.DefaultMountRoot
	}
	return current().MountRoot
}

// FSType is the filesystem created on fresh block devices.
func FSType() string {
	if current().FSType == "" {
		return "ext4"
	}
	return current().FSType
}

// ConvergenceInterval is the pause between convergence iterations.
func ConvergenceInterval() time.Duration {
	if current().ConvergenceInterval <= 0 {
		return strato.DefaultConvergenceInterval
	}
	return current().ConvergenceInterval
}

// ActionWorkers bounds concurrent corrective actions per iteration.
func ActionWorkers() int {
	if current().ActionWorkers < 1 {
		return strato.DefaultActionWorkers
	}
	return current().ActionWorkers
}

// HTTPAddr is the listen address of the status and metrics server.
func HTTPAddr() string {
	if current().HTTPAddr == "" {
		return strato.DefaultHTTPAddr
	}
	return current().HTTPAddr
}

// LogFile is where the rotating log sink writes.
func LogFile() string {
	if current().LogFile == "" {
		return strato.DefaultLogPath
	}
	return current().LogFile
}

// LogLevel is the minimum emitted log level.
func LogLevel() string {
	if current().LogLevel == "" {
		return "info"
	}
	return current().LogLevel
}

func validate(cfg Agent) error {
	if cfg.ControlServiceURL == "" {
		return fmt.Errorf("controlServiceURL is required")
	}
	u, err := url.Parse(cfg.ControlServiceURL)
	if err != nil {
		return fmt.Errorf("controlServiceURL is not a valid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("controlServiceURL must use ws or wss, got %q", u.Scheme)
	}
	if cfg.ConvergenceInterval < 0 {
		return fmt.Errorf("convergenceInterval must not be negative: %s", cfg.ConvergenceInterval)
	}
	if cfg.ActionWorkers < 0 {
		return fmt.Errorf("actionWorkers must not be negative: %d", cfg.ActionWorkers)
	}
	if cfg.LogLevel != "" &&
		!utils.ContainsString([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.LogLevel)) {
		return fmt.Errorf("unknown log level: %s", cfg.LogLevel)
	}
	return nil
}
