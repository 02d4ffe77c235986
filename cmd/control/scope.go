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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/srv/control"
)

const (
	EnabledOptionName  = "enabled"
	VoltDivOptionName  = "volt-div"
	PositionOptionName = "position"
	EdgeOptionName     = "edge"
	ModeOptionName     = "mode"
	SourceOptionName   = "source"
	LevelOptionName    = "level"
)

func parseChannel(arg string) (int, error) {
	ch, err := strconv.Atoi(arg)
	if err != nil || ch < 1 || ch > 2 {
		return 0, fmt.Errorf("channel must be 1 or 2, got %s", arg)
	}
	return ch, nil
}

func NewChannelCommand() *cobra.Command {
	var enabled bool
	var voltDiv int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:       "channel 1|2",
		Short:     "Change channel settings",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"1", "2"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			setup := &control.ChannelSetup{}
			if cmd.Flags().Changed(EnabledOptionName) {
				setup.Enabled = &enabled
			}
			if cmd.Flags().Changed(VoltDivOptionName) {
				setup.VoltDiv = &voltDiv
			}
			settings, err := command.NewApiClient(cfg).Channel(ch, setup)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Channel %d: enabled=%v voltDiv=%d\n", ch, settings.Enabled, settings.VoltDiv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabled, EnabledOptionName, true, "Enable the channel")
	cmd.Flags().IntVar(&voltDiv, VoltDivOptionName, 0, "Volt/div index, 0 to 10")
	return cmd
}

func NewTriggerCommand() *cobra.Command {
	var enabled bool
	var position, edge, mode string
	var source, level int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Change trigger settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			setup := &control.TrigSetup{
				Position: position,
				Edge:     edge,
				Mode:     mode,
			}
			if cmd.Flags().Changed(EnabledOptionName) {
				setup.Enabled = &enabled
			}
			if cmd.Flags().Changed(SourceOptionName) {
				setup.Source = &source
			}
			if cmd.Flags().Changed(LevelOptionName) {
				setup.Level = &level
			}
			t, err := command.NewApiClient(cfg).Trigger(setup)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trigger: enabled=%v position=%s source=%d falling=%v single=%v level=%d\n",
				t.Enabled, t.Position, t.Source, t.Falling, t.Single, t.Level)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabled, EnabledOptionName, true, "Enable the trigger")
	cmd.Flags().StringVar(&position, PositionOptionName, "", "Trigger position. One of: off, right, left, center")
	cmd.Flags().StringVar(&edge, EdgeOptionName, "", "Trigger edge. One of: rising, falling")
	cmd.Flags().StringVar(&mode, ModeOptionName, "", "Run mode. One of: continuous, single")
	cmd.Flags().IntVar(&source, SourceOptionName, 1, "Triggering channel, 1 or 2")
	cmd.Flags().IntVar(&level, LevelOptionName, 128, "Trigger level, 0 to 255")
	return cmd
}

func NewTimeDivCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "timediv INDEX",
		Short: fmt.Sprintf("Set the time/div index, 0 to %d", buffer.MaxTimeDiv),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			div, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			div, err = command.NewApiClient(cfg).TimeDiv(div)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Time/div: %d (%d samples)\n", div, buffer.WindowLength(div))
			return nil
		},
	}
	return cmd
}
