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

package reg

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

func regName(addr string) string {
	a, err := reg.ParseAddr(addr)
	if err != nil {
		return addr
	}
	return a.String()
}

func NewReadCommand() *cobra.Command {
	var device, addr string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read value from register",
		Long: `Print the registers of the current session. With --device print the
values last stored for a device key, e.g. usb:001:004, even when it is
not connected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			out := cmd.OutOrStdout()
			if addr != "" && device == "" {
				value, err := apiClient.RegRead(addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Register state: %s %s = %s\n", regName(addr), addr, value)
				return nil
			}
			var regs map[string]string
			var err error
			if device != "" {
				regs, err = apiClient.RegLast(device)
			} else {
				regs, err = apiClient.RegReadAll()
			}
			if err != nil {
				return err
			}
			var keys []string
			for key := range regs {
				if addr != "" && key != addr {
					continue
				}
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(out, "Register state: %s %s = %s\n", regName(key), key, regs[key])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&device, DeviceOptionName, "", "Device key")
	cmd.Flags().StringVar(&addr, AddrOptionName, "", "Register address (hexadecimal)")

	return cmd
}
