/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	AddressOptionName = "address"
	PortOptionName    = "port"
	DriverOptionName  = "driver"
)

func NewStartCommand() *cobra.Command {
	var address, driver string
	var port int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				cfg.Address = address
			}
			if port != 0 {
				cfg.ApiPort = port
			}
			if driver != "" {
				cfg.Device.Driver = driver
			}
			return command.StartControlServer(cfg)
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName, "", fmt.Sprintf("Address to bind. E.g. %s", config.DefaultAddress))
	cmd.Flags().IntVar(&port, PortOptionName, 0, fmt.Sprintf("API port. E.g. %d", config.DefaultApiPort))
	cmd.Flags().StringVar(&driver, DriverOptionName, "", fmt.Sprintf("Transport driver. One of: %v", transport.Drivers()))

	return cmd
}
