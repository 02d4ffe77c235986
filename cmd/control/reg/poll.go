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
	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
)

func NewPollCommand() *cobra.Command {
	var addr string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Refresh a register from the scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).RegPoll(addr)
		},
	}
	cmd.Flags().StringVar(&addr, AddrOptionName, "0x07", "Register address (hexadecimal)")

	return cmd
}
