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

package config

const (
	ConfigDir          = ".go-oscbridge"
	ConfigFile         = "config"
	DBFile             = "registers.db"
	DiscoverDBFile     = "discover.db"
	EnvPrefix          = "OSCBRIDGE"
	DefaultLogLevel    = "info"
	DefaultAddress     = "127.0.0.1"
	DefaultApiPort     = 8000
	DefaultDriver      = "usb"
	DefaultVendorID    = "0x04d8"
	DefaultProductID   = "0x003f"
	DefaultUSBConfig   = 1
	DefaultInterface   = 0
	DefaultEndpointOut = 0x01
	DefaultEndpointIn  = 0x81
	DefaultBaudRate    = 115200
	DefaultPollMs      = 1000

	DefaultWriteAttempts   = 3
	DefaultReadAttempts    = 0
	DefaultTransferTimeout = 500
	DefaultRetryInterval   = 10

	DefaultCapacity        = 1024
	DefaultAcquireInterval = 100
)
