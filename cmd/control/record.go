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
	"errors"

	"github.com/spf13/cobra"

	"github.com/oscdroid/go-oscbridge/pkg/command"
	"github.com/oscdroid/go-oscbridge/pkg/config"
)

const (
	DirOptionName        = "dir"
	FilePrefixOptionName = "file-prefix"
)

func NewRecordCommand() *cobra.Command {
	var filePrefix string
	var dir string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:       "record start|stop",
		Short:     "Start/stop recording acquisitions to files",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			switch args[0] {
			case "start":
				return apiClient.RecordStart(dir, filePrefix)
			case "stop":
				return apiClient.RecordStop()
			default:
				return errors.New("Wrong record command. Must be one of start/stop")
			}
		},
	}
	cmd.Flags().StringVar(&dir, DirOptionName, ".", "Directory path where to persist data")
	cmd.Flags().StringVar(&filePrefix, FilePrefixOptionName, "", "File name prefix")

	return cmd
}
