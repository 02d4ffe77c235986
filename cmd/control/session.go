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
	"github.com/oscdroid/go-oscbridge/pkg/srv/control"
)

func printState(cmd *cobra.Command, state *control.SessionState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State: %s\n", state.State)
	if state.Device != "" {
		fmt.Fprintf(out, "Device: %s\n", state.Device)
	}
	if state.ID != "" {
		fmt.Fprintf(out, "Session: %s\n", state.ID)
	}
}

func NewStateCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			state, err := apiClient.State()
			if err != nil {
				return err
			}
			printState(cmd, state)
			s := state.Stats
			fmt.Fprintf(cmd.OutOrStdout(), "Writes: %d (attempts %d, failed %d, superseded %d)\n",
				s.Writes, s.WriteAttempts, s.WriteFailures, s.Superseded)
			fmt.Fprintf(cmd.OutOrStdout(), "Reads: %d (failed %d, malformed %d)\n",
				s.Reads, s.ReadFailures, s.Malformed)
			return nil
		},
	}
	return cmd
}

func NewConnectCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the first attached scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			state, err := apiClient.Connect()
			if err != nil {
				return err
			}
			printState(cmd, state)
			return nil
		},
	}
	return cmd
}

func NewDisconnectCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Stop the session and release the scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).Disconnect()
		},
	}
	return cmd
}
