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

package discover

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/srv/discover"
)

func printDevices(out io.Writer, devices []*discover.DeviceDescription) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(out, "%s %s:%s serial=%s %s", d.Key, d.VendorID, d.ProductID, d.Serial, d.Description)
		if !d.Online {
			fmt.Fprint(out, " !!! Device is offline")
		}
		fmt.Fprintln(out)
	}
}

func NewListCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := command.NewApiClient(cfg).Devices()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
	return cmd
}

func NewScanCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Enumerate attached devices now",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := command.NewApiClient(cfg).Scan()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
	return cmd
}
