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

	"github.com/aybabtme/uniplot/histogram"
	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
)

const (
	AlignOptionName = "align"
	DivOptionName   = "div"
	BinsOptionName  = "bins"
	WidthOptionName = "width"
)

func NewWindowCommand() *cobra.Command {
	var align string
	var div, bins, width int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:       "window 1|2",
		Short:     "Show the display window of a channel",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"1", "2"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			win, err := command.NewApiClient(cfg).Window(ch, align, div)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Channel %d acquisition %d: %d of %d samples from %d, trigger at %d\n",
				win.Channel, win.Generation, win.Length, win.Capacity, win.Start, win.Trigger)
			if win.Length == 0 {
				return nil
			}
			fmt.Fprintf(out, "Min %d Max %d Peak-peak %d (centered %d..%d)\n",
				win.Min, win.Max, win.PeakPeak, win.CenteredMin, win.CenteredMax)

			data := make([]float64, len(win.Samples))
			for i, v := range win.Samples {
				data[i] = float64(v)
			}
			return histogram.Fprint(out, histogram.Hist(bins, data), histogram.Linear(width))
		},
	}
	cmd.Flags().StringVar(&align, AlignOptionName, "", "Window alignment. One of: off, right, left, center. Default follows the trigger position")
	cmd.Flags().IntVar(&div, DivOptionName, -1, "Time/div index. Default is the current one")
	cmd.Flags().IntVar(&bins, BinsOptionName, 16, "Number of histogram bins")
	cmd.Flags().IntVar(&width, WidthOptionName, 50, "Width of the histogram bars")
	return cmd
}
